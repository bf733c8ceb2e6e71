package reservation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// CounterPaymentRef is the payment reference stored for bookings settled
// at the box office.
const CounterPaymentRef = "COUNTER"

// PromoteRequest asks to turn a session's holds for one screening into a
// booking.  When SeatIDs is not empty the session must hold exactly those
// seats.
type PromoteRequest struct {
	ScreeningID uint64
	SessionID   string
	Customer    model.Customer
	SeatIDs     []uint64
}

// PaymentOutcome is the opaque signal delivered by the payment gateway.
type PaymentOutcome string

const (
	PaymentSuccess PaymentOutcome = "success"
	PaymentFailure PaymentOutcome = "failure"
	PaymentTimeout PaymentOutcome = "timeout"
)

func (o PaymentOutcome) status() (model.BookingStatus, bool) {
	switch o {
	case PaymentSuccess:
		return model.BookingConfirmed, true
	case PaymentFailure:
		return model.BookingFailed, true
	case PaymentTimeout:
		return model.BookingTimeout, true
	}
	return "", false
}

// ConfirmBooking promotes the session's holds into a PAYMENT_PENDING
// booking.  The holds are re-validated against the clock, frozen so the
// sweeper cannot release them, persisted together with their booking
// seats in one transaction and only then turned into booked seats.  Any
// failure unfreezes the holds and leaves no booking behind.
func (e *Engine) ConfirmBooking(ctx context.Context, req PromoteRequest) (*model.Booking, error) {
	if !validSessionID(req.SessionID) {
		return nil, ErrInvalidSessionID
	}
	if err := e.ensureLoaded(ctx, req.ScreeningID); err != nil {
		return nil, err
	}
	scr, err := e.screening(ctx, req.ScreeningID)
	if err != nil {
		return nil, err
	}
	seats, err := e.seatMap(ctx, req.ScreeningID)
	if err != nil {
		return nil, err
	}

	st := e.sessions.lock(req.SessionID)
	defer e.sessions.unlock(req.SessionID, st)

	now := e.now()
	holds, err := e.holds.BeginPromotion(req.SessionID, req.ScreeningID, req.SeatIDs, now)
	if err != nil {
		e.stats.promotionsRejected.Add(1)
		if errors.Is(err, holdstore.ErrNoHolds) &&
			st.rec.Phase == model.SessionTerminal && st.rec.Reason == model.ReasonExpired {
			return nil, ErrSessionExpired
		}
		return nil, ErrPromotionRejected
	}

	b := &model.Booking{
		UUID:        uuid.NewString(),
		ScreeningID: req.ScreeningID,
		SessionID:   req.SessionID,
		Status:      model.BookingPaymentPending,
		EntryStatus: model.EntryValid,
		Customer:    req.Customer,
		Seats:       make([]model.BookingSeat, 0, len(holds)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, h := range holds {
		price := scr.BasePriceCents
		if s, ok := seats[h.SeatID]; ok {
			price = s.PriceCents
		}
		b.Seats = append(b.Seats, model.BookingSeat{
			ScreeningID: req.ScreeningID,
			SeatID:      h.SeatID,
			PriceCents:  price,
		})
		b.AmountCents += price
	}

	if err := e.bookings.Create(ctx, b); err != nil {
		e.holds.AbortPromotion(holds)
		if errors.Is(err, repository.ErrSeatTaken) {
			// the database knows a booking the hold store does not
			e.invalidate(req.ScreeningID)
			e.stats.promotionsRejected.Add(1)
			return nil, ErrPromotionRejected
		}
		return nil, storageErr("create booking", err)
	}
	for i := range b.Seats {
		b.Seats[i].BookingID = b.ID
	}

	e.holds.CommitPromotion(holds, b.ID)
	e.terminate(st, req.SessionID, model.ReasonPromoted, now)
	e.stats.bookingsCreated.Add(1)
	e.log.LogBookingCreated(ctx, b.ID, b.ScreeningID, len(b.Seats), b.AmountCents)
	return b, nil
}

// CounterConfirm promotes and immediately confirms a booking taken at the
// box office, where payment happens in person.
func (e *Engine) CounterConfirm(ctx context.Context, req PromoteRequest) (*model.Booking, error) {
	b, err := e.ConfirmBooking(ctx, req)
	if err != nil {
		return nil, err
	}
	ref := CounterPaymentRef
	return e.transition(ctx, b.ID, model.BookingConfirmed, &ref)
}

// CompletePayment applies the payment gateway signal to a booking.  A
// repeated signal for the same outcome is a no-op.
func (e *Engine) CompletePayment(ctx context.Context, bookingID uint64, outcome PaymentOutcome, reference string) (*model.Booking, error) {
	to, ok := outcome.status()
	if !ok {
		return nil, ErrInvalidTransition
	}
	var ref *string
	if reference != "" {
		ref = &reference
	}
	return e.transition(ctx, bookingID, to, ref)
}

// CancelBooking cancels an active booking and returns its seats to the
// pool.
func (e *Engine) CancelBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return e.transition(ctx, bookingID, model.BookingCancelled, nil)
}

// transition moves a booking to status to with a conditional update, so
// concurrent signals for the same booking have exactly one winner.
// Leaving the active set frees the seats.
func (e *Engine) transition(ctx context.Context, bookingID uint64, to model.BookingStatus, ref *string) (*model.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, storageErr("get booking", err)
	}
	if b.Status == to {
		return b, nil
	}
	if !b.Status.CanTransition(to) {
		return nil, ErrInvalidTransition
	}
	from := b.Status
	if err := e.bookings.UpdateStatus(ctx, b.ID, from, to, ref); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusChanged):
			return nil, ErrInvalidTransition
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrBookingNotFound
		}
		return nil, storageErr("update booking status", err)
	}
	b.Status = to
	b.UpdatedAt = e.now()
	if ref != nil {
		b.PaymentRef = ref
	}

	switch {
	case to == model.BookingConfirmed:
		e.stats.bookingsConfirmed.Add(1)
	case !to.Active():
		e.unbook(b)
		e.stats.bookingsReleased.Add(1)
	}
	e.log.LogBookingTransition(ctx, b.ID, string(from), string(to))
	e.publish(ctx, b)
	return b, nil
}

// CheckIn admits a confirmed ticket once.
func (e *Engine) CheckIn(ctx context.Context, ticketUUID string) (*model.Booking, error) {
	b, err := e.Ticket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingConfirmed || b.EntryStatus != model.EntryValid {
		return nil, ErrInvalidTransition
	}
	if err := e.bookings.SetEntryStatus(ctx, b.ID, model.EntryValid, model.EntryEntered); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, ErrInvalidTransition
		}
		return nil, storageErr("set entry status", err)
	}
	b.EntryStatus = model.EntryEntered
	b.UpdatedAt = e.now()
	return b, nil
}

// Ticket looks a booking up by its ticket uuid.
func (e *Engine) Ticket(ctx context.Context, ticketUUID string) (*model.Booking, error) {
	if _, err := uuid.Parse(ticketUUID); err != nil {
		return nil, ErrBookingNotFound
	}
	b, err := e.bookings.GetByUUID(ctx, ticketUUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, storageErr("get ticket", err)
	}
	return b, nil
}

// ScreeningBookings lists every booking of a screening, newest first.
func (e *Engine) ScreeningBookings(ctx context.Context, screeningID uint64) ([]model.Booking, error) {
	if _, err := e.screening(ctx, screeningID); err != nil {
		return nil, err
	}
	list, err := e.bookings.ListByScreening(ctx, screeningID)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return list, nil
}

// TimeoutStalePayments moves bookings that waited longer than the payment
// window for a gateway signal to TIMEOUT.
func (e *Engine) TimeoutStalePayments(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.PaymentTTL)
	stale, err := e.bookings.ListStale(ctx,
		[]model.BookingStatus{model.BookingPending, model.BookingPaymentPending}, cutoff)
	if err != nil {
		return 0, storageErr("list stale bookings", err)
	}
	n := 0
	for _, b := range stale {
		_, err := e.transition(ctx, b.ID, model.BookingTimeout, nil)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrBookingNotFound):
			// settled concurrently
		default:
			return n, err
		}
	}
	return n, nil
}
