package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// MemoryBookings is a BookingStore kept in process memory.  It enforces
// the same one-active-booking-per-seat rule as the MySQL schema and is
// used with STORAGE=memory and in tests.
type MemoryBookings struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.Booking
	active map[[2]uint64]uint64 // (screening, seat) -> booking id
}

// NewMemoryBookings returns an empty store.
func NewMemoryBookings() *MemoryBookings {
	return &MemoryBookings{
		byID:   make(map[uint64]*model.Booking),
		active: make(map[[2]uint64]uint64),
	}
}

func clone(b *model.Booking) *model.Booking {
	c := *b
	c.Seats = append([]model.BookingSeat(nil), b.Seats...)
	if b.PaymentRef != nil {
		ref := *b.PaymentRef
		c.PaymentRef = &ref
	}
	return &c
}

func (m *MemoryBookings) Create(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range b.Seats {
		if _, taken := m.active[[2]uint64{b.ScreeningID, s.SeatID}]; taken {
			return ErrSeatTaken
		}
	}
	m.nextID++
	b.ID = m.nextID
	for i := range b.Seats {
		b.Seats[i].BookingID = b.ID
		b.Seats[i].ScreeningID = b.ScreeningID
	}
	stored := clone(b)
	m.byID[b.ID] = stored
	if stored.Status.Active() {
		for _, s := range stored.Seats {
			m.active[[2]uint64{b.ScreeningID, s.SeatID}] = b.ID
		}
	}
	return nil
}

func (m *MemoryBookings) Get(_ context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (m *MemoryBookings) GetByUUID(_ context.Context, uuid string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.byID {
		if b.UUID == uuid {
			return clone(b), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryBookings) UpdateStatus(_ context.Context, id uint64, from, to model.BookingStatus, paymentRef *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != from {
		return ErrStatusChanged
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	if paymentRef != nil {
		ref := *paymentRef
		b.PaymentRef = &ref
	}
	if !to.Active() {
		for _, s := range b.Seats {
			k := [2]uint64{b.ScreeningID, s.SeatID}
			if m.active[k] == id {
				delete(m.active, k)
			}
		}
	}
	return nil
}

func (m *MemoryBookings) SetEntryStatus(_ context.Context, id uint64, from, to model.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok || b.EntryStatus != from {
		return ErrStatusChanged
	}
	b.EntryStatus = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryBookings) ActiveSeats(_ context.Context, screeningID uint64) (map[uint64][]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64][]uint64)
	for k, bookingID := range m.active {
		if k[0] == screeningID {
			out[bookingID] = append(out[bookingID], k[1])
		}
	}
	return out, nil
}

func (m *MemoryBookings) ListStale(_ context.Context, statuses []model.BookingStatus, before time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.byID {
		if !b.CreatedAt.Before(before) {
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				out = append(out, *clone(b))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryBookings) ListByScreening(_ context.Context, screeningID uint64) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.byID {
		if b.ScreeningID == screeningID {
			out = append(out, *clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Count returns the number of stored bookings.
func (m *MemoryBookings) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// MemoryCatalog is a fixed catalog kept in process memory.
type MemoryCatalog struct {
	mu         sync.RWMutex
	screenings map[uint64]model.Screening
	seats      map[uint64][]model.Seat // by screening
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		screenings: make(map[uint64]model.Screening),
		seats:      make(map[uint64][]model.Seat),
	}
}

// Put registers a screening with its priced seat map, replacing any
// previous entry.
func (c *MemoryCatalog) Put(s model.Screening, seats []model.Seat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenings[s.ID] = s
	c.seats[s.ID] = append([]model.Seat(nil), seats...)
}

func (c *MemoryCatalog) Screening(_ context.Context, id uint64) (*model.Screening, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.screenings[id]
	if !ok {
		return nil, ErrScreeningNotFound
	}
	return &s, nil
}

func (c *MemoryCatalog) Seats(_ context.Context, screeningID uint64) ([]model.Seat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.screenings[screeningID]; !ok {
		return nil, ErrScreeningNotFound
	}
	return append([]model.Seat(nil), c.seats[screeningID]...), nil
}

// DemoCatalog returns a catalog with one scheduled screening of a small
// hall, used when the server runs without a database.
func DemoCatalog(now time.Time) *MemoryCatalog {
	c := NewMemoryCatalog()
	scr := model.Screening{
		ID:             1,
		HallID:         1,
		MovieTitle:     "Demo Screening",
		StartsAt:       now.Add(2 * time.Hour),
		EndsAt:         now.Add(365 * 24 * time.Hour),
		BasePriceCents: 900,
		Status:         model.ScreeningScheduled,
	}
	var seats []model.Seat
	id := uint64(1)
	for _, row := range []string{"A", "B", "C", "D"} {
		for n := uint32(1); n <= 10; n++ {
			s := model.Seat{ID: id, HallID: 1, RowLabel: row, SeatNumber: n, Category: model.SeatStandard, PriceCents: 900}
			if row == "D" {
				s.Category = model.SeatVIP
				s.PriceCents = 1400
			}
			seats = append(seats, s)
			id++
		}
	}
	c.Put(scr, seats)
	return c
}
