package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/queue"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

const screeningID = 1

var (
	ctx = context.Background()
	t0  = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

type fixture struct {
	engine    *Engine
	clock     *testClock
	bookings  *repository.MemoryBookings
	catalog   *repository.MemoryCatalog
	publisher *recordingPublisher
}

var testConfig = Config{
	SelectionTTL:       2 * time.Minute,
	PaymentTTL:         10 * time.Minute,
	MaxSeatsPerSession: 4,
	SessionRetention:   30 * time.Minute,
}

// newFixture builds an engine over one screening with seats 1..n priced
// 1000 cents each.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	clock := &testClock{now: t0}
	catalog := repository.NewMemoryCatalog()
	seats := make([]model.Seat, 0, n)
	for i := 1; i <= n; i++ {
		seats = append(seats, model.Seat{
			ID:         uint64(i),
			HallID:     1,
			RowLabel:   "A",
			SeatNumber: uint32(i),
			Category:   model.SeatStandard,
			PriceCents: 1000,
		})
	}
	catalog.Put(model.Screening{
		ID:             screeningID,
		HallID:         1,
		MovieTitle:     "Test",
		StartsAt:       t0.Add(3 * time.Hour),
		EndsAt:         t0.Add(5 * time.Hour),
		BasePriceCents: 800,
		Status:         model.ScreeningScheduled,
	}, seats)

	bookings := repository.NewMemoryBookings()
	pub := &recordingPublisher{}
	e := New(testConfig, holdstore.New(16), catalog, bookings, logger.Discard(),
		WithClock(clock.Now), WithPublisher(pub))
	return &fixture{engine: e, clock: clock, bookings: bookings, catalog: catalog, publisher: pub}
}

func (f *fixture) selectSeats(t *testing.T, session string, seats ...uint64) {
	t.Helper()
	for _, s := range seats {
		_, err := f.engine.Select(ctx, screeningID, session, s, nil)
		require.NoError(t, err, "select seat %d for %s", s, session)
	}
}

func statusOf(occ model.Occupancy, seat uint64) model.OwnerClass {
	for _, s := range occ.OccupiedSeats {
		if s.SeatID == seat {
			return s.Status
		}
	}
	return ""
}

func TestNew_PanicsOnNilDependency(t *testing.T) {
	assert.Panics(t, func() {
		New(testConfig, nil, repository.NewMemoryCatalog(), repository.NewMemoryBookings(), nil)
	})
}

func TestEngine_InitializeSession(t *testing.T) {
	f := newFixture(t, 3)

	occ, err := f.engine.InitializeSession(ctx, screeningID, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(screeningID), occ.ScreeningID)
	assert.Empty(t, occ.OccupiedSeats)
	assert.Empty(t, occ.SessionSeats)

	_, ok := f.engine.Session("a")
	assert.False(t, ok, "initialising must not create session state")

	_, err = f.engine.InitializeSession(ctx, 99, "a")
	assert.ErrorIs(t, err, ErrScreeningNotFound)

	_, err = f.engine.InitializeSession(ctx, screeningID, "   ")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestEngine_Occupancy_ClassifiesSeats(t *testing.T) {
	f := newFixture(t, 4)
	f.selectSeats(t, "a", 1)
	f.selectSeats(t, "b", 2)

	occ, err := f.engine.Occupancy(ctx, screeningID, "a")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerMine, statusOf(occ, 1))
	assert.Equal(t, model.OwnerOther, statusOf(occ, 2))
	assert.Equal(t, model.OwnerClass(""), statusOf(occ, 3))
	assert.Equal(t, []uint64{1}, occ.SessionSeats)

	anon, err := f.engine.Occupancy(ctx, screeningID, "")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerOther, statusOf(anon, 1))
	assert.Empty(t, anon.SessionSeats)
}

func TestEngine_Occupancy_LoadsExistingBookings(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.bookings.Create(ctx, &model.Booking{
		UUID:        "11111111-1111-1111-1111-111111111111",
		ScreeningID: screeningID,
		Status:      model.BookingConfirmed,
		EntryStatus: model.EntryValid,
		Seats:       []model.BookingSeat{{SeatID: 3, PriceCents: 1000}},
		CreatedAt:   t0,
	}))

	occ, err := f.engine.Occupancy(ctx, screeningID, "a")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerBooked, statusOf(occ, 3))

	_, err = f.engine.Select(ctx, screeningID, "a", 3, nil)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(3), conflict.SeatID)
}

func TestEngine_SeatMap(t *testing.T) {
	f := newFixture(t, 5)

	scr, seats, err := f.engine.SeatMap(ctx, screeningID)
	require.NoError(t, err)
	assert.Equal(t, "Test", scr.MovieTitle)
	assert.Len(t, seats, 5)

	_, _, err = f.engine.SeatMap(ctx, 42)
	assert.ErrorIs(t, err, ErrScreeningNotFound)
}

func TestEngine_RefreshCatalog_DropsCachedScreening(t *testing.T) {
	f := newFixture(t, 3)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cached := repository.NewCachedCatalog(config.CatalogCacheConfig{Enabled: true, TTL: time.Hour, Prefix: "catalog"}, rdb, f.catalog)
	e := New(testConfig, holdstore.New(16), cached, f.bookings, logger.Discard(), WithClock(f.clock.Now))

	_, err := e.Select(ctx, screeningID, "a", 1, nil)
	require.NoError(t, err)

	scr, err := f.catalog.Screening(ctx, screeningID)
	require.NoError(t, err)
	seats, err := f.catalog.Seats(ctx, screeningID)
	require.NoError(t, err)
	scr.Status = "CANCELLED"
	f.catalog.Put(*scr, seats)

	// still served from the cache
	_, err = e.Select(ctx, screeningID, "a", 2, nil)
	require.NoError(t, err)

	got, err := e.RefreshCatalog(ctx, screeningID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", got.Status)

	_, err = e.Select(ctx, screeningID, "a", 3, nil)
	assert.ErrorIs(t, err, ErrScreeningClosed)

	_, err = e.RefreshCatalog(ctx, 42)
	assert.ErrorIs(t, err, ErrScreeningNotFound)
}

func TestEngine_RefreshCatalog_WithoutCache(t *testing.T) {
	f := newFixture(t, 3)

	got, err := f.engine.RefreshCatalog(ctx, screeningID)
	require.NoError(t, err)
	assert.Equal(t, uint64(screeningID), got.ID)
}

func TestEngine_Stats(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "a", 1, 2)
	_, err := f.engine.Select(ctx, screeningID, "b", 1, nil)
	require.Error(t, err)

	s := f.engine.Stats()
	assert.Equal(t, int64(2), s.Selects)
	assert.Equal(t, int64(1), s.Conflicts)
	assert.Equal(t, 2, s.LiveHolds)
	assert.Equal(t, 1, s.ActiveSessions)
}
