package model

import "time"

// Screening is a scheduled showing of a movie in one hall.  It is the
// scope within which seat exclusivity is enforced and is read-only for
// the reservation engine.
//
// Fields:
//  ID             – primary key identifier.
//  HallID         – hall where the screening takes place.
//  MovieTitle     – title shown to customers.
//  StartsAt       – when the screening begins.
//  EndsAt         – when the screening ends.
//  BasePriceCents – price used for categories without a price list entry.
//  Status         – SCHEDULED, CANCELLED or FINISHED.
type Screening struct {
    ID             uint64    `json:"id"`             // screenings.id
    HallID         uint64    `json:"hallId"`         // screenings.hall_id
    MovieTitle     string    `json:"movieTitle"`     // screenings.movie_title
    StartsAt       time.Time `json:"startsAt"`       // screenings.starts_at
    EndsAt         time.Time `json:"endsAt"`         // screenings.ends_at
    BasePriceCents uint32    `json:"basePriceCents"` // screenings.base_price_cents
    Status         string    `json:"status"`         // screenings.status
}

// ScreeningScheduled is the only screening status that accepts holds.
const ScreeningScheduled = "SCHEDULED"

// Bookable reports whether seats of the screening may still be held at t.
func (s *Screening) Bookable(t time.Time) bool {
    return s.Status == ScreeningScheduled && t.Before(s.EndsAt)
}
