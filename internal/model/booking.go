package model

import "time"

// BookingStatus is the state of a booking.
type BookingStatus string

const (
    BookingPending        BookingStatus = "PENDING"
    BookingPaymentPending BookingStatus = "PAYMENT_PENDING"
    BookingConfirmed      BookingStatus = "CONFIRMED"
    BookingFailed         BookingStatus = "FAILED"
    BookingCancelled      BookingStatus = "CANCELLED"
    BookingExpired        BookingStatus = "EXPIRED"
    BookingTimeout        BookingStatus = "TIMEOUT"
)

// ActiveBookingStatuses keep their seats out of the selectable pool.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingPaymentPending, BookingConfirmed}

func (s BookingStatus) IsValid() bool {
    switch s {
    case BookingPending, BookingPaymentPending, BookingConfirmed, BookingFailed,
        BookingCancelled, BookingExpired, BookingTimeout:
        return true
    }
    return false
}

// Active reports whether a booking in this status still owns its seats.
func (s BookingStatus) Active() bool {
    switch s {
    case BookingPending, BookingPaymentPending, BookingConfirmed:
        return true
    }
    return false
}

// CanTransition reports whether the state machine allows s -> next.
// CONFIRMED may only move to CANCELLED; every releasing status is final.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
    switch s {
    case BookingPending, BookingPaymentPending:
        switch next {
        case BookingConfirmed, BookingFailed, BookingCancelled, BookingExpired, BookingTimeout:
            return true
        }
    case BookingConfirmed:
        return next == BookingCancelled
    }
    return false
}

// EntryStatus tracks admission of a confirmed ticket.
type EntryStatus string

const (
    EntryValid   EntryStatus = "VALID"
    EntryEntered EntryStatus = "ENTERED"
)

// Customer holds the contact details captured at booking time.
type Customer struct {
    Name  string `json:"name" validate:"required,max=120"`
    Email string `json:"email" validate:"required,email,max=190"`
    Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Booking is the durable, billable artifact produced by promoting a
// session's holds.  Its seat set is fixed at creation.
//
// Fields:
//  ID               – primary key identifier.
//  UUID             – ticket identifier shown to the customer.
//  ScreeningID      – screening being booked.
//  SessionID        – session whose holds were promoted.
//  Status           – see BookingStatus.
//  EntryStatus      – VALID until the ticket is scanned at the door.
//  AmountCents      – sum of the locked seat prices.
//  Customer         – contact details.
//  PaymentRef       – external payment reference, if any.
//  Seats            – booked seats with locked prices.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
    ID          uint64        `json:"id"`
    UUID        string        `json:"uuid"`
    ScreeningID uint64        `json:"screeningId"`
    SessionID   string        `json:"-"`
    Status      BookingStatus `json:"status"`
    EntryStatus EntryStatus   `json:"entryStatus"`
    AmountCents uint32        `json:"amountCents"`
    Customer    Customer      `json:"customer"`
    PaymentRef  *string       `json:"paymentRef,omitempty"`
    Seats       []BookingSeat `json:"seats"`
    CreatedAt   time.Time     `json:"createdAt"`
    UpdatedAt   time.Time     `json:"updatedAt"`
}

// SeatIDs returns the ids of the booked seats in booking order.
func (b *Booking) SeatIDs() []uint64 {
    ids := make([]uint64, 0, len(b.Seats))
    for _, s := range b.Seats {
        ids = append(ids, s.SeatID)
    }
    return ids
}

// BookingSeat links a booking to one seat and carries the price locked
// in at promotion time.
type BookingSeat struct {
    BookingID   uint64 `json:"-"`
    ScreeningID uint64 `json:"-"`
    SeatID      uint64 `json:"seatId"`
    PriceCents  uint32 `json:"priceCents"`
}
