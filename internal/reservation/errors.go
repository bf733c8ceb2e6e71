package reservation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// Expected, recoverable outcomes of the reservation protocol.  They are
// frequent under contention and are counted, not logged as failures.
var (
	ErrSeatConflict           = errors.New("seat is held or booked by another session")
	ErrSessionExpired         = errors.New("session expired")
	ErrSelectionLimitExceeded = errors.New("selection limit exceeded")
	ErrPromotionRejected      = errors.New("holds expired or missing")
	ErrNoActiveHolds          = errors.New("session has no active holds")
)

// Request errors.
var (
	ErrUnknownSeat        = errors.New("seat does not belong to screening")
	ErrScreeningNotFound  = errors.New("screening not found")
	ErrScreeningClosed    = errors.New("screening no longer accepts reservations")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ConflictError is returned by Select when another session won the seat.
// It carries the occupancy snapshot so the caller can repaint without a
// second round trip.
type ConflictError struct {
	SeatID    uint64
	Occupancy model.Occupancy
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seat %d: %v", e.SeatID, ErrSeatConflict)
}

func (e *ConflictError) Unwrap() error { return ErrSeatConflict }

// storageErr marks err as an infrastructure failure while keeping the
// original cause in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
