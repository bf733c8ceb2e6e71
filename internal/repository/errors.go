// Package repository defines error types that are reused across the
// booking and catalog stores.  These sentinel values allow higher layers
// such as the reservation engine and the handlers to distinguish between
// different failure scenarios without knowing which store produced them.
package repository

import "errors"

// ErrNotFound is returned when a booking does not exist.
var ErrNotFound = errors.New("not found")

// ErrScreeningNotFound is returned when a screening does not exist.
var ErrScreeningNotFound = errors.New("screening not found")

// ErrSeatTaken is returned when inserting a booking would place a seat
// in a second active booking for the same screening.  The MySQL store
// derives it from the unique key on booking_seats.
var ErrSeatTaken = errors.New("seat already booked")

// ErrStatusChanged is returned by conditional status updates when the
// stored status no longer matches the expected one.
var ErrStatusChanged = errors.New("booking status changed concurrently")
