package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

var alice = model.Customer{Name: "Alice", Email: "alice@example.com"}

func TestScenario_SelectConflictPayConfirm(t *testing.T) {
	f := newFixture(t, 3)

	f.selectSeats(t, "A", 1, 2)

	_, err := f.engine.Select(ctx, screeningID, "B", 2, nil)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(2), conflict.SeatID)

	occB, err := f.engine.Occupancy(ctx, screeningID, "B")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerOther, statusOf(occB, 2))

	for _, h := range f.engine.holds.SessionHolds("A", screeningID) {
		assert.Equal(t, t0.Add(testConfig.SelectionTTL), h.ExpiresAt)
	}
	win, err := f.engine.ProceedToPayment(ctx, screeningID, "A")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(testConfig.PaymentTTL), win.ExpiresAt)
	assert.Equal(t, 600, win.TimeoutSeconds)
	for _, h := range f.engine.holds.SessionHolds("A", screeningID) {
		assert.Equal(t, win.ExpiresAt, h.ExpiresAt)
	}
	sess, ok := f.engine.Session("A")
	require.True(t, ok)
	assert.Equal(t, model.SessionPayment, sess.Phase)

	f.clock.Advance(5 * time.Minute) // past the selection TTL, inside the payment window
	b, err := f.engine.ConfirmBooking(ctx, PromoteRequest{
		ScreeningID: screeningID,
		SessionID:   "A",
		Customer:    alice,
		SeatIDs:     []uint64{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPaymentPending, b.Status)
	assert.Len(t, b.Seats, 2)
	assert.Equal(t, uint32(2000), b.AmountCents)
	assert.NotEmpty(t, b.UUID)

	b, err = f.engine.CompletePayment(ctx, b.ID, PaymentSuccess, "psp-123")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	require.NotNil(t, b.PaymentRef)
	assert.Equal(t, "psp-123", *b.PaymentRef)

	occ, err := f.engine.Occupancy(ctx, screeningID, "C")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerBooked, statusOf(occ, 1))
	assert.Equal(t, model.OwnerBooked, statusOf(occ, 2))
	assert.Equal(t, model.OwnerClass(""), statusOf(occ, 3))

	sess, ok = f.engine.Session("A")
	require.True(t, ok)
	assert.Equal(t, model.SessionTerminal, sess.Phase)
	assert.Equal(t, model.ReasonPromoted, sess.Reason)

	assert.Equal(t, []string{string(model.BookingConfirmed)}, f.publisher.statuses())
}

func TestConfirmBooking_ExpiredHoldLeavesNoBooking(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 1, 2)

	f.clock.Advance(testConfig.SelectionTTL + time.Second)
	_, err := f.engine.ConfirmBooking(ctx, PromoteRequest{
		ScreeningID: screeningID,
		SessionID:   "A",
		Customer:    alice,
		SeatIDs:     []uint64{1, 2},
	})

	assert.ErrorIs(t, err, ErrPromotionRejected)
	assert.Equal(t, 0, f.bookings.Count())
	active, err := f.bookings.ActiveSeats(ctx, screeningID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestConfirmBooking_AfterSweepReportsSessionExpired(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 1)
	f.clock.Advance(testConfig.SelectionTTL)
	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	_, err = f.engine.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, f.bookings.Count())
}

func TestConfirmBooking_SeatSetMustMatchHolds(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 1, 2)

	_, err := f.engine.ConfirmBooking(ctx, PromoteRequest{
		ScreeningID: screeningID,
		SessionID:   "A",
		Customer:    alice,
		SeatIDs:     []uint64{1, 3},
	})
	assert.ErrorIs(t, err, ErrPromotionRejected)

	// holds survive a rejected promotion
	assert.Len(t, f.engine.holds.SessionHolds("A", screeningID), 2)

	b, err := f.engine.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, b.SeatIDs())
}

func TestConfirmBooking_UnknownBookingInStorageRejects(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.engine.Occupancy(ctx, screeningID, "A")
	require.NoError(t, err)

	// written by another replica after this one loaded the screening
	require.NoError(t, f.bookings.Create(ctx, &model.Booking{
		UUID:        "22222222-2222-2222-2222-222222222222",
		ScreeningID: screeningID,
		Status:      model.BookingConfirmed,
		EntryStatus: model.EntryValid,
		Seats:       []model.BookingSeat{{SeatID: 1}},
		CreatedAt:   t0,
	}))
	f.selectSeats(t, "A", 1)

	_, err = f.engine.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	assert.ErrorIs(t, err, ErrPromotionRejected)
	assert.Equal(t, 1, f.bookings.Count())

	occ, err := f.engine.Occupancy(ctx, screeningID, "A")
	require.NoError(t, err)
	assert.Equal(t, model.OwnerBooked, statusOf(occ, 1))
	assert.Empty(t, occ.SessionSeats)
}

type failingCreate struct {
	*repository.MemoryBookings
	err error
}

func (f *failingCreate) Create(context.Context, *model.Booking) error { return f.err }

func TestConfirmBooking_StorageFailureUnfreezesHolds(t *testing.T) {
	f := newFixture(t, 3)
	store := &failingCreate{MemoryBookings: f.bookings, err: errors.New("connection refused")}
	e := New(testConfig, holdstore.New(16), f.catalog, store, logger.Discard(), WithClock(f.clock.Now))
	for _, seat := range []uint64{1, 2} {
		_, err := e.Select(ctx, screeningID, "A", seat, nil)
		require.NoError(t, err)
	}

	_, err := e.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Zero(t, f.bookings.Count())

	// the owner can still release, so the holds are no longer promoting
	_, err = e.Deselect(ctx, screeningID, "A", 1)
	require.NoError(t, err)
	_, err = e.Select(ctx, screeningID, "B", 1, nil)
	require.NoError(t, err)

	f.clock.Advance(testConfig.SelectionTTL + time.Second)
	rep, err := e.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.HoldsReleased)

	occ, err := e.Occupancy(ctx, screeningID, "C")
	require.NoError(t, err)
	assert.Empty(t, occ.OccupiedSeats)
}

func TestCompletePayment_FailureReleasesSeats(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 1)
	b, err := f.engine.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	require.NoError(t, err)

	_, err = f.engine.Select(ctx, screeningID, "B", 1, nil)
	require.ErrorIs(t, err, ErrSeatConflict)

	failed, err := f.engine.CompletePayment(ctx, b.ID, PaymentFailure, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingFailed, failed.Status)

	// the same signal twice is harmless
	again, err := f.engine.CompletePayment(ctx, b.ID, PaymentFailure, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingFailed, again.Status)

	_, err = f.engine.CompletePayment(ctx, b.ID, PaymentSuccess, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.Select(ctx, screeningID, "B", 1, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{string(model.BookingFailed)}, f.publisher.statuses())
}

func TestCompletePayment_UnknownBookingAndOutcome(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.engine.CompletePayment(ctx, 404, PaymentSuccess, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.engine.CompletePayment(ctx, 1, PaymentOutcome("maybe"), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCounterConfirm_ThenCheckIn(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "box-office-1", 3)

	b, err := f.engine.CounterConfirm(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "box-office-1", Customer: alice})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	require.NotNil(t, b.PaymentRef)
	assert.Equal(t, CounterPaymentRef, *b.PaymentRef)

	ticket, err := f.engine.Ticket(ctx, b.UUID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, ticket.ID)

	entered, err := f.engine.CheckIn(ctx, b.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryEntered, entered.EntryStatus)

	_, err = f.engine.CheckIn(ctx, b.UUID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.Ticket(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelBooking_ConfirmedSeatsReturnToPool(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 2)
	b, err := f.engine.CounterConfirm(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	require.NoError(t, err)

	cancelled, err := f.engine.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)

	occ, err := f.engine.Occupancy(ctx, screeningID, "")
	require.NoError(t, err)
	assert.Empty(t, occ.OccupiedSeats)

	list, err := f.engine.ScreeningBookings(ctx, screeningID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BookingCancelled, list[0].Status)
}

func TestTimeoutStalePayments(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "A", 1)
	b, err := f.engine.ConfirmBooking(ctx, PromoteRequest{ScreeningID: screeningID, SessionID: "A", Customer: alice})
	require.NoError(t, err)

	n, err := f.engine.TimeoutStalePayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(testConfig.PaymentTTL + time.Second)
	rep, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.BookingsTimedOut)

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingTimeout, got.Status)

	_, err = f.engine.Select(ctx, screeningID, "B", 1, nil)
	assert.NoError(t, err)
}
