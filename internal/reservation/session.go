package reservation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// sessionState is the per-session lock and lifecycle record.  A state
// marked gone has been dropped from the manager and must not be used.
type sessionState struct {
	mu   sync.Mutex
	gone bool
	rec  model.Session
}

// sessionManager serializes TTL extension, promotion and termination per
// session id.  Different sessions never contend.
type sessionManager struct {
	states sync.Map // string -> *sessionState
}

func newSessionManager() *sessionManager {
	return &sessionManager{}
}

// lock returns the locked state of id, creating an empty one if needed.
func (m *sessionManager) lock(id string) *sessionState {
	for {
		v, _ := m.states.LoadOrStore(id, &sessionState{})
		st := v.(*sessionState)
		st.mu.Lock()
		if !st.gone {
			return st
		}
		st.mu.Unlock()
	}
}

// unlock releases st.  A state that never got a record is dropped so
// read-only calls leave nothing behind.
func (m *sessionManager) unlock(id string, st *sessionState) {
	if st.rec.ID == "" {
		st.gone = true
		m.states.CompareAndDelete(id, st)
	}
	st.mu.Unlock()
}

func (m *sessionManager) snapshot(id string) (model.Session, bool) {
	v, ok := m.states.Load(id)
	if !ok {
		return model.Session{}, false
	}
	st := v.(*sessionState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gone || st.rec.ID == "" {
		return model.Session{}, false
	}
	return st.rec, true
}

func (m *sessionManager) ids() []string {
	var out []string
	m.states.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}

// count returns the number of sessions that are not terminal.
func (m *sessionManager) count() int {
	n := 0
	m.states.Range(func(_, v any) bool {
		st := v.(*sessionState)
		st.mu.Lock()
		if !st.gone && st.rec.ID != "" && st.rec.Phase != model.SessionTerminal {
			n++
		}
		st.mu.Unlock()
		return true
	})
	return n
}

// forget drops terminal records older than cutoff.
func (m *sessionManager) forget(cutoff time.Time) int {
	n := 0
	m.states.Range(func(k, v any) bool {
		st := v.(*sessionState)
		st.mu.Lock()
		if !st.gone && st.rec.Phase == model.SessionTerminal && st.rec.UpdatedAt.Before(cutoff) {
			st.gone = true
			m.states.CompareAndDelete(k, st)
			n++
		}
		st.mu.Unlock()
		return true
	})
	return n
}

// touch moves the record into the selecting phase after a successful
// select.  The session deadline only ever grows while selecting.
func touch(st *sessionState, id string, screeningID uint64, expiresAt, now time.Time) {
	if st.rec.ID == "" || st.rec.Phase == model.SessionTerminal {
		st.rec = model.Session{ID: id}
	}
	st.rec.ScreeningID = screeningID
	st.rec.Phase = model.SessionSelecting
	if expiresAt.After(st.rec.ExpiresAt) {
		st.rec.ExpiresAt = expiresAt
	}
	st.rec.UpdatedAt = now
}

// terminate ends the session and releases every hold it still owns in the
// same step.  st must be locked.
func (e *Engine) terminate(st *sessionState, id string, reason model.TerminalReason, now time.Time) []model.Hold {
	released := e.holds.ReleaseSession(id)
	if st.rec.ID == "" && len(released) == 0 && reason != model.ReasonExpired {
		return nil
	}
	st.rec.ID = id
	st.rec.Phase = model.SessionTerminal
	st.rec.Reason = reason
	st.rec.ExpiresAt = now
	st.rec.UpdatedAt = now
	return released
}

// PaymentWindow is the result of ProceedToPayment.
type PaymentWindow struct {
	ExpiresAt      time.Time `json:"expiresAt"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
}

// ProceedToPayment moves the session from selecting to payment by
// extending every hold it owns on the screening to the payment window.
// The extension is all-or-nothing: if any of those holds has already
// lapsed the session is expired and its remaining holds are released.
func (e *Engine) ProceedToPayment(ctx context.Context, screeningID uint64, sessionID string) (PaymentWindow, error) {
	if !validSessionID(sessionID) {
		return PaymentWindow{}, ErrInvalidSessionID
	}
	st := e.sessions.lock(sessionID)
	defer e.sessions.unlock(sessionID, st)

	now := e.now()
	if len(e.holds.SessionHolds(sessionID, screeningID)) == 0 {
		if st.rec.Phase == model.SessionTerminal && st.rec.Reason == model.ReasonExpired {
			return PaymentWindow{}, ErrSessionExpired
		}
		return PaymentWindow{}, ErrNoActiveHolds
	}

	expiresAt := now.Add(e.cfg.PaymentTTL)
	n, err := e.holds.ExtendTTL(sessionID, screeningID, now, expiresAt)
	switch {
	case errors.Is(err, holdstore.ErrHoldExpired):
		released := e.terminate(st, sessionID, model.ReasonExpired, now)
		e.stats.sessionsExpired.Add(1)
		e.stats.holdsReleased.Add(int64(len(released)))
		return PaymentWindow{}, ErrSessionExpired
	case err != nil:
		return PaymentWindow{}, ErrNoActiveHolds
	}

	if st.rec.ID == "" || st.rec.Phase == model.SessionTerminal {
		st.rec = model.Session{ID: sessionID}
	}
	st.rec.ScreeningID = screeningID
	st.rec.Phase = model.SessionPayment
	st.rec.ExpiresAt = expiresAt
	st.rec.UpdatedAt = now

	e.log.WithSession(sessionID).DebugContext(ctx, "session moved to payment",
		"screening_id", screeningID, "holds", n)
	return PaymentWindow{
		ExpiresAt:      expiresAt,
		TimeoutSeconds: int(e.cfg.PaymentTTL / time.Second),
	}, nil
}

// Cleanup releases every hold of the session and terminates it.  It is the
// explicit early release used when a client navigates away.
func (e *Engine) Cleanup(ctx context.Context, sessionID string) (int, error) {
	if !validSessionID(sessionID) {
		return 0, ErrInvalidSessionID
	}
	st := e.sessions.lock(sessionID)
	defer e.sessions.unlock(sessionID, st)

	released := e.terminate(st, sessionID, model.ReasonCancelled, e.now())
	e.stats.holdsReleased.Add(int64(len(released)))
	if len(released) > 0 {
		e.log.WithSession(sessionID).DebugContext(ctx, "session cleaned up",
			"released", len(released))
	}
	return len(released), nil
}
