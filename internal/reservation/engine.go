// Package reservation implements the seat reservation and booking state
// machine on top of the hold store: the conflict resolver (Select,
// Deselect), the session lifecycle (ProceedToPayment, Cleanup), the
// booking promoter (ConfirmBooking, CompletePayment) and the expiry sweep.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/queue"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// Catalog is the read-only seat catalog.
type Catalog interface {
	Screening(ctx context.Context, id uint64) (*model.Screening, error)
	Seats(ctx context.Context, screeningID uint64) ([]model.Seat, error)
}

// BookingStore persists bookings.  Create must insert the booking and its
// seats atomically and report repository.ErrSeatTaken when a seat already
// belongs to an active booking of the same screening.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	Get(ctx context.Context, id uint64) (*model.Booking, error)
	GetByUUID(ctx context.Context, uuid string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus, paymentRef *string) error
	SetEntryStatus(ctx context.Context, id uint64, from, to model.EntryStatus) error
	ActiveSeats(ctx context.Context, screeningID uint64) (map[uint64][]uint64, error)
	ListStale(ctx context.Context, statuses []model.BookingStatus, before time.Time) ([]model.Booking, error)
	ListByScreening(ctx context.Context, screeningID uint64) ([]model.Booking, error)
}

// Publisher delivers booking lifecycle events.  Failures never undo a
// committed transition.
type Publisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// Config is the server-side reservation policy.
type Config struct {
	SelectionTTL       time.Duration
	PaymentTTL         time.Duration
	MaxSeatsPerSession int
	// SessionRetention is how long terminal session records are kept so
	// late calls get ErrSessionExpired instead of a fresh session.
	SessionRetention time.Duration
}

// Engine is the reservation core.  All methods are safe for concurrent use.
type Engine struct {
	cfg       Config
	holds     *holdstore.Store
	catalog   Catalog
	bookings  BookingStore
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
	sessions  *sessionManager
	stats     *Stats

	loadMu sync.Mutex
	loads  map[uint64]*screeningLoad
}

type screeningLoad struct {
	mu     sync.Mutex
	loaded bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, used by tests to move time forward.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher attaches a booking event publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// New builds an Engine.  holds, catalog and bookings must be non-nil.
func New(cfg Config, holds *holdstore.Store, catalog Catalog, bookings BookingStore, log *logger.Logger, opts ...Option) *Engine {
	if holds == nil || catalog == nil || bookings == nil {
		panic("nil dependency passed to reservation.New")
	}
	if cfg.MaxSeatsPerSession < 1 {
		cfg.MaxSeatsPerSession = 1
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = cfg.PaymentTTL
	}
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{
		cfg:      cfg,
		holds:    holds,
		catalog:  catalog,
		bookings: bookings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: newSessionManager(),
		stats:    &Stats{},
		loads:    make(map[uint64]*screeningLoad),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() StatsSnapshot {
	live, booked := e.holds.Len(e.now())
	return e.stats.snapshot(live, booked, e.sessions.count())
}

func validSessionID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= 128
}

// ensureLoaded copies the active bookings of a screening into the hold
// store the first time the screening is touched.  The database query runs
// under a per-screening mutex, never under a hold key lock.
func (e *Engine) ensureLoaded(ctx context.Context, screeningID uint64) error {
	l := e.screeningLoad(screeningID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}
	active, err := e.bookings.ActiveSeats(ctx, screeningID)
	if err != nil {
		return storageErr("load active bookings", err)
	}
	for bookingID, seats := range active {
		e.holds.MarkBooked(screeningID, seats, bookingID)
	}
	l.loaded = true
	return nil
}

func (e *Engine) screeningLoad(screeningID uint64) *screeningLoad {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	l, ok := e.loads[screeningID]
	if !ok {
		l = &screeningLoad{}
		e.loads[screeningID] = l
	}
	return l
}

// invalidate forces the next ensureLoaded to reread active bookings.
func (e *Engine) invalidate(screeningID uint64) {
	l := e.screeningLoad(screeningID)
	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()
}

// unbook frees the seats of a booking that left the active set.  It runs
// under the screening load lock so a concurrent load cannot re-mark them.
func (e *Engine) unbook(b *model.Booking) int {
	l := e.screeningLoad(b.ScreeningID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.holds.Unbook(b.ScreeningID, b.SeatIDs(), b.ID)
}

// screening loads a screening and maps repository errors.
func (e *Engine) screening(ctx context.Context, id uint64) (*model.Screening, error) {
	s, err := e.catalog.Screening(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrScreeningNotFound) {
			return nil, ErrScreeningNotFound
		}
		return nil, storageErr("load screening", err)
	}
	return s, nil
}

// seatMap loads the seats of a screening keyed by seat id.
func (e *Engine) seatMap(ctx context.Context, screeningID uint64) (map[uint64]model.Seat, error) {
	seats, err := e.catalog.Seats(ctx, screeningID)
	if err != nil {
		if errors.Is(err, repository.ErrScreeningNotFound) {
			return nil, ErrScreeningNotFound
		}
		return nil, storageErr("load seats", err)
	}
	m := make(map[uint64]model.Seat, len(seats))
	for _, s := range seats {
		m[s.ID] = s
	}
	return m, nil
}

// catalogInvalidator is implemented by caching catalogs.
type catalogInvalidator interface {
	Invalidate(ctx context.Context, screeningID uint64) error
}

// RefreshCatalog drops any cached copy of a screening and its seats and
// reloads the screening from the source catalog.  It is called after the
// screening was changed upstream, for example cancelled or repriced;
// until then a cached copy is served for up to the cache TTL.
func (e *Engine) RefreshCatalog(ctx context.Context, screeningID uint64) (*model.Screening, error) {
	if inv, ok := e.catalog.(catalogInvalidator); ok {
		if err := inv.Invalidate(ctx, screeningID); err != nil {
			return nil, storageErr("invalidate catalog", err)
		}
	}
	return e.screening(ctx, screeningID)
}

// SeatMap returns the seat catalog of a screening.
func (e *Engine) SeatMap(ctx context.Context, screeningID uint64) (*model.Screening, []model.Seat, error) {
	s, err := e.screening(ctx, screeningID)
	if err != nil {
		return nil, nil, err
	}
	seats, err := e.catalog.Seats(ctx, screeningID)
	if err != nil {
		return nil, nil, storageErr("load seats", err)
	}
	return s, seats, nil
}

// occupancy builds the snapshot returned to a session.
func (e *Engine) occupancy(screeningID uint64, sessionID string, now time.Time) model.Occupancy {
	occ := model.Occupancy{
		ScreeningID:   screeningID,
		OccupiedSeats: e.holds.ListOccupied(screeningID, sessionID, now),
		SessionSeats:  []uint64{},
	}
	for _, s := range occ.OccupiedSeats {
		if s.Status == model.OwnerMine {
			occ.SessionSeats = append(occ.SessionSeats, s.SeatID)
		}
	}
	return occ
}

// InitializeSession validates the screening and returns the current
// occupancy for the session.  It is idempotent and creates no state.
func (e *Engine) InitializeSession(ctx context.Context, screeningID uint64, sessionID string) (model.Occupancy, error) {
	if !validSessionID(sessionID) {
		return model.Occupancy{}, ErrInvalidSessionID
	}
	if _, err := e.screening(ctx, screeningID); err != nil {
		return model.Occupancy{}, err
	}
	return e.Occupancy(ctx, screeningID, sessionID)
}

// Occupancy is the read-only polling view.  sessionID may be empty for
// anonymous viewers, in which case no seat is reported as "mine".
func (e *Engine) Occupancy(ctx context.Context, screeningID uint64, sessionID string) (model.Occupancy, error) {
	if err := e.ensureLoaded(ctx, screeningID); err != nil {
		return model.Occupancy{}, err
	}
	return e.occupancy(screeningID, sessionID, e.now()), nil
}

// Session returns the lifecycle record of a session.
func (e *Engine) Session(sessionID string) (model.Session, bool) {
	return e.sessions.snapshot(sessionID)
}

func (e *Engine) publish(ctx context.Context, b *model.Booking) {
	if e.publisher == nil {
		return
	}
	ev := queue.BookingEvent{
		BookingID:   b.ID,
		TicketUUID:  b.UUID,
		ScreeningID: b.ScreeningID,
		Status:      string(b.Status),
		SeatIDs:     b.SeatIDs(),
		AmountCents: b.AmountCents,
		Customer:    b.Customer.Email,
		OccurredAt:  e.now().Format(time.RFC3339),
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.log.WarnContext(ctx, "booking event not published",
			"booking_id", b.ID, "status", ev.Status, "error", err.Error())
	}
}

func (e *Engine) String() string {
	return fmt.Sprintf("reservation.Engine(selection=%s payment=%s max=%d)",
		e.cfg.SelectionTTL, e.cfg.PaymentTTL, e.cfg.MaxSeatsPerSession)
}
