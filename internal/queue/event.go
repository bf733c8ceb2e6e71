// Package queue defines message payloads exchanged over the message broker.
package queue

// Routing keys / queue names used for booking lifecycle events.
const (
    BookingConfirmedQueue = "booking.confirmed"
    BookingReleasedQueue  = "booking.released"
)

// BookingEvent is published whenever a booking reaches CONFIRMED or
// leaves the active set (FAILED, CANCELLED, EXPIRED, TIMEOUT).  It carries
// enough information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.
type BookingEvent struct {
    BookingID   uint64   `json:"booking_id"`
    TicketUUID  string   `json:"ticket_uuid"`
    ScreeningID uint64   `json:"screening_id"`
    Status      string   `json:"status"`
    SeatIDs     []uint64 `json:"seat_ids"`
    AmountCents uint32   `json:"amount_cents"`
    Customer    string   `json:"customer_email"`
    OccurredAt  string   `json:"occurred_at"`
}

// Queue returns the queue an event is routed to.
func (e BookingEvent) Queue() string {
    if e.Status == "CONFIRMED" {
        return BookingConfirmedQueue
    }
    return BookingReleasedQueue
}
