package model

import "time"

// Hold is a time-bounded, session-owned claim on one seat for one
// screening.  Holds are not billable and live only in the hold store;
// only ExpiresAt is ever changed after creation.
//
// Fields:
//  ScreeningID – screening the seat is held for.
//  SeatID      – seat being held.
//  SessionID   – opaque client session that owns the hold.
//  HeldAt      – when the hold was acquired.
//  ExpiresAt   – absolute deadline after which the hold is void.
//  Device      – optional audit metadata sent by the client.
type Hold struct {
    ScreeningID uint64      `json:"screeningId"`
    SeatID      uint64      `json:"seatId"`
    SessionID   string      `json:"-"`
    HeldAt      time.Time   `json:"heldAt"`
    ExpiresAt   time.Time   `json:"expiresAt"`
    Device      *DeviceInfo `json:"-"`
}

// Expired reports whether the hold's deadline has passed at t.
func (h Hold) Expired(t time.Time) bool { return !t.Before(h.ExpiresAt) }

// DeviceInfo is opaque audit metadata attached to a hold.  It is stored
// but never consulted for any reservation decision.
type DeviceInfo struct {
    DeviceType string `json:"deviceType,omitempty"`
    Browser    string `json:"browser,omitempty"`
    OS         string `json:"os,omitempty"`
    Country    string `json:"country,omitempty"`
    City       string `json:"city,omitempty"`
}

// OwnerClass tells a caller how an occupied seat should be rendered
// without revealing which other session holds it.
type OwnerClass string

const (
    OwnerBooked OwnerClass = "booked" // part of an active booking
    OwnerOther  OwnerClass = "other"  // held by another session
    OwnerMine   OwnerClass = "mine"   // held by the caller's session
)

// OccupiedSeat is one entry of an occupancy snapshot.
type OccupiedSeat struct {
    SeatID uint64     `json:"seatId"`
    Status OwnerClass `json:"status"`
}

// Occupancy is the snapshot returned alongside most reservation calls so
// the client can repaint without a second round trip.  OccupiedSeats
// lists every non-free seat; SessionSeats repeats the caller's own seats.
type Occupancy struct {
    ScreeningID   uint64         `json:"screeningId"`
    OccupiedSeats []OccupiedSeat `json:"occupiedSeats"`
    SessionSeats  []uint64       `json:"sessionSeats"`
}
