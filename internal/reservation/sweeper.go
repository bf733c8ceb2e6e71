package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// SweepReport summarises one sweep.
type SweepReport struct {
	HoldsReleased     int
	SessionsExpired   int
	SessionsForgotten int
	BookingsTimedOut  int
}

func (r SweepReport) empty() bool {
	return r.HoldsReleased == 0 && r.SessionsExpired == 0 && r.BookingsTimedOut == 0
}

// Sweep releases holds past their deadline, expires sessions left without
// a live hold and times out bookings still waiting for payment.  It never
// holds a key lock across the scan and is safe to run at any time.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	now := e.now()
	var rep SweepReport

	swept := e.holds.Sweep(now)
	rep.HoldsReleased = len(swept)
	affected := make(map[string]struct{}, len(swept))
	for _, h := range swept {
		affected[h.SessionID] = struct{}{}
	}

	for _, id := range e.sessions.ids() {
		if e.expireSession(id, affected, now) {
			rep.SessionsExpired++
		}
	}
	rep.SessionsForgotten = e.sessions.forget(now.Add(-e.cfg.SessionRetention))

	timedOut, err := e.TimeoutStalePayments(ctx)
	rep.BookingsTimedOut = timedOut

	e.stats.holdsSwept.Add(int64(rep.HoldsReleased))
	e.stats.sessionsExpired.Add(int64(rep.SessionsExpired))
	return rep, err
}

// expireSession terminates id if it has no live hold left and either lost
// a hold in this sweep or passed its own deadline.
func (e *Engine) expireSession(id string, affected map[string]struct{}, now time.Time) bool {
	st := e.sessions.lock(id)
	defer e.sessions.unlock(id, st)

	if st.rec.ID == "" || st.rec.Phase == model.SessionTerminal {
		return false
	}
	_, lost := affected[id]
	if !lost && now.Before(st.rec.ExpiresAt) {
		return false
	}
	if e.holds.CountLive(id, now) > 0 {
		return false
	}
	e.terminate(st, id, model.ReasonExpired, now)
	return true
}

// SweepRunner is what the Sweeper ticks.
type SweepRunner interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// Sweeper runs the expiry sweep on a fixed interval until its context is
// cancelled.
type Sweeper struct {
	runner   SweepRunner
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(runner SweepRunner, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{
		runner:   runner,
		interval: interval,
		log:      log,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	start := time.Now()
	rep, err := s.runner.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).ErrorContext(ctx, "sweep failed")
	}
	if !rep.empty() {
		s.log.LogSweep(ctx, rep.HoldsReleased, rep.SessionsExpired, rep.BookingsTimedOut, time.Since(start))
	}
}
