// Package holdstore is the authoritative in-memory map of which seat, for
// which screening, is currently held by which session.  Every mutation of
// a (screening, seat) key happens under that key's stripe lock; nothing
// inside a critical section performs I/O.  Secondary indexes (per
// screening, per session) are sharded and are only ever locked while a
// stripe lock is held, never the other way round.
package holdstore

import (
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

var (
	// ErrNoHolds is returned when a session owns no hold for the request.
	ErrNoHolds = errors.New("session owns no holds")
	// ErrHoldExpired is returned when at least one hold of a session has
	// passed its deadline, which voids an all-or-nothing operation.
	ErrHoldExpired = errors.New("hold expired")
	// ErrHoldBusy is returned when a hold is already being promoted.
	ErrHoldBusy = errors.New("hold is being promoted")
)

// Result is the outcome of a single-key operation.
type Result int

const (
	Acquired    Result = iota // a new hold was created
	AlreadyMine               // the caller already holds the seat
	Conflict                  // another session holds the seat
	Booked                    // the seat belongs to an active booking
	Released                  // the caller's hold was removed
	NotOwner                  // nothing owned by the caller to release
)

func (r Result) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case AlreadyMine:
		return "already_mine"
	case Conflict:
		return "conflict"
	case Booked:
		return "booked"
	case Released:
		return "released"
	case NotOwner:
		return "not_owner"
	}
	return "unknown"
}

// Outcome describes the result of TryAcquire.  HeldBy is only set on
// Conflict and must not be passed on to other sessions.
type Outcome struct {
	Result Result
	Hold   model.Hold
	HeldBy string
}

type key struct {
	screening uint64
	seat      uint64
}

type entry struct {
	hold      model.Hold
	promoting bool
	bookingID uint64
}

func (e *entry) booked() bool { return e.bookingID != 0 }

// live reports whether the entry still excludes other sessions at t.
func (e *entry) live(t time.Time) bool {
	return e.booked() || e.promoting || !e.hold.Expired(t)
}

type stripe struct {
	mu      sync.Mutex
	entries map[key]*entry
}

type screeningShard struct {
	mu    sync.Mutex
	seats map[uint64]map[uint64]struct{}
}

type sessionShard struct {
	mu   sync.Mutex
	keys map[string]map[key]struct{}
}

// Store is a striped hold store.  The zero value is not usable; call New.
type Store struct {
	stripes    []stripe
	screenings []screeningShard
	sessions   []sessionShard
}

// New returns a Store with n lock stripes (at least one).
func New(n int) *Store {
	if n < 1 {
		n = 1
	}
	s := &Store{
		stripes:    make([]stripe, n),
		screenings: make([]screeningShard, n),
		sessions:   make([]sessionShard, n),
	}
	for i := 0; i < n; i++ {
		s.stripes[i].entries = make(map[key]*entry)
		s.screenings[i].seats = make(map[uint64]map[uint64]struct{})
		s.sessions[i].keys = make(map[string]map[key]struct{})
	}
	return s
}

func (s *Store) stripeIndex(k key) int {
	h := k.screening*0x9E3779B97F4A7C15 ^ k.seat
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return int(h % uint64(len(s.stripes)))
}

func (s *Store) screeningShardFor(id uint64) *screeningShard {
	return &s.screenings[id%uint64(len(s.screenings))]
}

func (s *Store) sessionShardFor(id string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.sessions[h.Sum32()%uint32(len(s.sessions))]
}

// index helpers; callers hold the stripe lock of k.

func (s *Store) indexSeat(k key) {
	sh := s.screeningShardFor(k.screening)
	sh.mu.Lock()
	m, ok := sh.seats[k.screening]
	if !ok {
		m = make(map[uint64]struct{})
		sh.seats[k.screening] = m
	}
	m[k.seat] = struct{}{}
	sh.mu.Unlock()
}

func (s *Store) unindexSeat(k key) {
	sh := s.screeningShardFor(k.screening)
	sh.mu.Lock()
	if m, ok := sh.seats[k.screening]; ok {
		delete(m, k.seat)
		if len(m) == 0 {
			delete(sh.seats, k.screening)
		}
	}
	sh.mu.Unlock()
}

func (s *Store) indexSession(session string, k key) {
	sh := s.sessionShardFor(session)
	sh.mu.Lock()
	m, ok := sh.keys[session]
	if !ok {
		m = make(map[key]struct{})
		sh.keys[session] = m
	}
	m[k] = struct{}{}
	sh.mu.Unlock()
}

func (s *Store) unindexSession(session string, k key) {
	sh := s.sessionShardFor(session)
	sh.mu.Lock()
	if m, ok := sh.keys[session]; ok {
		delete(m, k)
		if len(m) == 0 {
			delete(sh.keys, session)
		}
	}
	sh.mu.Unlock()
}

func (s *Store) sessionKeys(session string) []key {
	sh := s.sessionShardFor(session)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	m := sh.keys[session]
	out := make([]key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s *Store) screeningSeats(screening uint64) []uint64 {
	sh := s.screeningShardFor(screening)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	m := sh.seats[screening]
	out := make([]uint64, 0, len(m))
	for seat := range m {
		out = append(out, seat)
	}
	return out
}

// removeLocked deletes the entry at k and its index records.  The stripe
// lock of k must be held.
func (s *Store) removeLocked(st *stripe, k key, e *entry) {
	delete(st.entries, k)
	if !e.booked() {
		s.unindexSession(e.hold.SessionID, k)
	}
	s.unindexSeat(k)
}

// TryAcquire attempts a compare-and-set of the (screening, seat) key for
// session.  An expired, non-promoting hold of another session is replaced.
// A live hold already owned by session is returned unchanged.
func (s *Store) TryAcquire(screeningID, seatID uint64, sessionID string, now time.Time, ttl time.Duration, device *model.DeviceInfo) Outcome {
	k := key{screeningID, seatID}
	st := &s.stripes[s.stripeIndex(k)]
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.entries[k]; ok {
		switch {
		case e.booked():
			return Outcome{Result: Booked}
		case e.live(now) && e.hold.SessionID == sessionID:
			return Outcome{Result: AlreadyMine, Hold: e.hold}
		case e.live(now):
			return Outcome{Result: Conflict, HeldBy: e.hold.SessionID}
		}
		// expired and not being promoted: the old owner lost it
		s.removeLocked(st, k, e)
	}

	h := model.Hold{
		ScreeningID: screeningID,
		SeatID:      seatID,
		SessionID:   sessionID,
		HeldAt:      now,
		ExpiresAt:   now.Add(ttl),
		Device:      device,
	}
	st.entries[k] = &entry{hold: h}
	s.indexSeat(k)
	s.indexSession(sessionID, k)
	return Outcome{Result: Acquired, Hold: h}
}

// Release removes session's hold on the key.  Releasing a seat the session
// does not own (already swept, taken over, booked or mid-promotion) is a
// no-op returning NotOwner.
func (s *Store) Release(screeningID, seatID uint64, sessionID string) Result {
	k := key{screeningID, seatID}
	st := &s.stripes[s.stripeIndex(k)]
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.entries[k]
	if !ok || e.booked() || e.promoting || e.hold.SessionID != sessionID {
		return NotOwner
	}
	s.removeLocked(st, k, e)
	return Released
}

// ReleaseSession removes every hold owned by session that is not being
// promoted and returns the released holds.
func (s *Store) ReleaseSession(sessionID string) []model.Hold {
	var out []model.Hold
	for _, k := range s.sessionKeys(sessionID) {
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && !e.booked() && !e.promoting && e.hold.SessionID == sessionID {
			out = append(out, e.hold)
			s.removeLocked(st, k, e)
		}
		st.mu.Unlock()
	}
	return out
}

// ListOccupied returns the non-free seats of a screening classified for
// the caller.  Expired holds are never reported.  The result is ordered
// by seat id.
func (s *Store) ListOccupied(screeningID uint64, callerSession string, now time.Time) []model.OccupiedSeat {
	seats := s.screeningSeats(screeningID)
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
	out := make([]model.OccupiedSeat, 0, len(seats))
	for _, seat := range seats {
		k := key{screeningID, seat}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		e, ok := st.entries[k]
		var class model.OwnerClass
		switch {
		case !ok || !e.live(now):
		case e.booked():
			class = model.OwnerBooked
		case callerSession != "" && e.hold.SessionID == callerSession:
			class = model.OwnerMine
		default:
			class = model.OwnerOther
		}
		st.mu.Unlock()
		if class != "" {
			out = append(out, model.OccupiedSeat{SeatID: seat, Status: class})
		}
	}
	return out
}

// SessionHolds returns every hold owned by session, including expired
// ones that have not been swept yet, ordered by seat id.  A zero
// screeningID matches all screenings.
func (s *Store) SessionHolds(sessionID string, screeningID uint64) []model.Hold {
	var out []model.Hold
	for _, k := range s.sessionKeys(sessionID) {
		if screeningID != 0 && k.screening != screeningID {
			continue
		}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && !e.booked() && e.hold.SessionID == sessionID {
			out = append(out, e.hold)
		}
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScreeningID != out[j].ScreeningID {
			return out[i].ScreeningID < out[j].ScreeningID
		}
		return out[i].SeatID < out[j].SeatID
	})
	return out
}

// CountLive returns the number of non-expired holds owned by session.
func (s *Store) CountLive(sessionID string, now time.Time) int {
	n := 0
	for _, h := range s.SessionHolds(sessionID, 0) {
		if !h.Expired(now) {
			n++
		}
	}
	return n
}

// lockKeys locks the stripes covering keys in ascending stripe order and
// returns the unlock function.  Taking several stripes in a fixed order
// keeps multi-key operations deadlock free.
func (s *Store) lockKeys(keys []key) func() {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		i := s.stripeIndex(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.stripes[i].mu.Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].mu.Unlock()
		}
	}
}

// ownedLocked collects the entries of keys still owned by session.  The
// stripes of keys must be locked.
func (s *Store) ownedLocked(keys []key, sessionID string) []*entry {
	out := make([]*entry, 0, len(keys))
	for _, k := range keys {
		e, ok := s.stripes[s.stripeIndex(k)].entries[k]
		if ok && !e.booked() && e.hold.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// screeningKeys is sessionKeys narrowed to one screening.
func (s *Store) screeningKeys(session string, screeningID uint64) []key {
	var keys []key
	for _, k := range s.sessionKeys(session) {
		if k.screening == screeningID {
			keys = append(keys, k)
		}
	}
	return keys
}

// ExtendTTL moves the deadline of every hold the session owns on
// screeningID to expiresAt.  The update is all-or-nothing: if the session
// owns no hold there or any of them has already expired, nothing changes.
// Holds on other screenings are left to their own deadlines.
func (s *Store) ExtendTTL(sessionID string, screeningID uint64, now, expiresAt time.Time) (int, error) {
	keys := s.screeningKeys(sessionID, screeningID)
	if len(keys) == 0 {
		return 0, ErrNoHolds
	}
	unlock := s.lockKeys(keys)
	defer unlock()

	owned := s.ownedLocked(keys, sessionID)
	if len(owned) == 0 {
		return 0, ErrNoHolds
	}
	for _, e := range owned {
		if e.promoting {
			return 0, ErrHoldBusy
		}
		if e.hold.Expired(now) {
			return 0, ErrHoldExpired
		}
	}
	for _, e := range owned {
		e.hold.ExpiresAt = expiresAt
	}
	return len(owned), nil
}

// BeginPromotion validates and freezes the session's holds for a
// screening.  Frozen holds are skipped by Sweep and refused by Release
// until CommitPromotion or AbortPromotion is called.  If seatIDs is not
// empty the session must hold exactly that set.
func (s *Store) BeginPromotion(sessionID string, screeningID uint64, seatIDs []uint64, now time.Time) ([]model.Hold, error) {
	keys := s.screeningKeys(sessionID, screeningID)
	if len(keys) == 0 {
		return nil, ErrNoHolds
	}
	unlock := s.lockKeys(keys)
	defer unlock()

	owned := s.ownedLocked(keys, sessionID)
	if len(owned) == 0 {
		return nil, ErrNoHolds
	}
	for _, e := range owned {
		if e.promoting {
			return nil, ErrHoldBusy
		}
		if e.hold.Expired(now) {
			return nil, ErrHoldExpired
		}
	}
	if len(seatIDs) > 0 {
		want := make(map[uint64]struct{}, len(seatIDs))
		for _, id := range seatIDs {
			want[id] = struct{}{}
		}
		if len(want) != len(owned) {
			return nil, ErrNoHolds
		}
		for _, e := range owned {
			if _, ok := want[e.hold.SeatID]; !ok {
				return nil, ErrNoHolds
			}
		}
	}
	holds := make([]model.Hold, 0, len(owned))
	for _, e := range owned {
		e.promoting = true
		holds = append(holds, e.hold)
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].SeatID < holds[j].SeatID })
	return holds, nil
}

// CommitPromotion turns frozen holds into booked entries owned by
// bookingID.  The seats stop counting as the session's holds.
func (s *Store) CommitPromotion(holds []model.Hold, bookingID uint64) {
	for _, h := range holds {
		k := key{h.ScreeningID, h.SeatID}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && e.promoting && e.hold.SessionID == h.SessionID {
			s.unindexSession(h.SessionID, k)
			e.promoting = false
			e.bookingID = bookingID
		}
		st.mu.Unlock()
	}
}

// AbortPromotion unfreezes holds after a failed promotion.  The holds keep
// their original deadlines and become sweepable again.
func (s *Store) AbortPromotion(holds []model.Hold) {
	for _, h := range holds {
		k := key{h.ScreeningID, h.SeatID}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && e.promoting && e.hold.SessionID == h.SessionID {
			e.promoting = false
		}
		st.mu.Unlock()
	}
}

// MarkBooked records seats of an active booking.  Any hold on those seats
// is dropped; the booking is authoritative.
func (s *Store) MarkBooked(screeningID uint64, seatIDs []uint64, bookingID uint64) {
	for _, seat := range seatIDs {
		k := key{screeningID, seat}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && !e.booked() {
			s.unindexSession(e.hold.SessionID, k)
		}
		st.entries[k] = &entry{
			hold:      model.Hold{ScreeningID: screeningID, SeatID: seat},
			bookingID: bookingID,
		}
		s.indexSeat(k)
		st.mu.Unlock()
	}
}

// Unbook frees seats that belonged to bookingID.  Seats since taken over
// by another booking are left alone.
func (s *Store) Unbook(screeningID uint64, seatIDs []uint64, bookingID uint64) int {
	n := 0
	for _, seat := range seatIDs {
		k := key{screeningID, seat}
		st := &s.stripes[s.stripeIndex(k)]
		st.mu.Lock()
		if e, ok := st.entries[k]; ok && e.bookingID == bookingID {
			s.removeLocked(st, k, e)
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// Sweep releases every hold whose deadline has passed at now, skipping
// holds that are being promoted.  It locks one stripe at a time and is
// idempotent.
func (s *Store) Sweep(now time.Time) []model.Hold {
	var out []model.Hold
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for k, e := range st.entries {
			if e.booked() || e.promoting || !e.hold.Expired(now) {
				continue
			}
			out = append(out, e.hold)
			s.removeLocked(st, k, e)
		}
		st.mu.Unlock()
	}
	return out
}

// Len returns the number of live holds and booked seats, for stats.
func (s *Store) Len(now time.Time) (holds, booked int) {
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for _, e := range st.entries {
			switch {
			case e.booked():
				booked++
			case e.live(now):
				holds++
			}
		}
		st.mu.Unlock()
	}
	return holds, booked
}
