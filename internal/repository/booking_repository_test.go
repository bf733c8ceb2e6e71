package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

var created = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func pendingBooking() *model.Booking {
	return &model.Booking{
		UUID:        "0b6f1f5e-5d3a-4c3e-9d1e-6c1b2f8a9e01",
		ScreeningID: 1,
		SessionID:   "sess-a",
		Status:      model.BookingPaymentPending,
		EntryStatus: model.EntryValid,
		AmountCents: 1800,
		Customer:    model.Customer{Name: "Alice", Email: "alice@example.com"},
		Seats: []model.BookingSeat{
			{SeatID: 10, PriceCents: 900},
			{SeatID: 11, PriceCents: 900},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func bookingRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "uuid", "screening_id", "session_id", "status", "entry_status",
		"amount_cents", "customer_name", "customer_email", "customer_phone", "payment_ref", "created_at", "updated_at"}).
		AddRow(7, "0b6f1f5e-5d3a-4c3e-9d1e-6c1b2f8a9e01", 1, "sess-a", "CONFIRMED", "VALID",
			1800, "Alice", "alice@example.com", nil, "psp-1", created, created)
}

func TestBookingRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO booking_seats").
		WithArgs(int64(7), int64(1), int64(10), int64(900), int64(7), int64(1), int64(11), int64(900)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	b := pendingBooking()
	require.NoError(t, repo.Create(context.Background(), b))
	assert.Equal(t, uint64(7), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_Create_DuplicateSeat(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec("INSERT INTO booking_seats").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-10-1' for key 'uq_booking_seats_active'"})
	mock.ExpectRollback()

	b := pendingBooking()
	err := repo.Create(context.Background(), b)

	assert.ErrorIs(t, err, ErrSeatTaken)
	assert.Zero(t, b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_UpdateStatus_ReleasesSeats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs("FAILED", nil, int64(7), "PAYMENT_PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE booking_seats SET active = NULL").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), 7, model.BookingPaymentPending, model.BookingFailed, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_UpdateStatus_ConfirmKeepsSeats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	ref := "psp-1"
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs("CONFIRMED", ref, int64(7), "PAYMENT_PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), 7, model.BookingPaymentPending, model.BookingConfirmed, &ref)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_UpdateStatus_LostRace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM bookings").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), 7, model.BookingPaymentPending, model.BookingConfirmed, nil)
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_UpdateStatus_Missing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM bookings").WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), 99, model.BookingPaymentPending, model.BookingConfirmed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery("FROM bookings WHERE id").WithArgs(int64(7)).WillReturnRows(bookingRow())
	mock.ExpectQuery("FROM booking_seats WHERE booking_id").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "screening_id", "seat_id", "price_cents"}).
			AddRow(7, 1, 10, 900).
			AddRow(7, 1, 11, 900))

	b, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, []uint64{10, 11}, b.SeatIDs())
	require.NotNil(t, b.PaymentRef)
	assert.Equal(t, "psp-1", *b.PaymentRef)
	assert.Empty(t, b.Customer.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_Get_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery("FROM bookings WHERE uuid").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByUUID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingRepo_ActiveSeats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery("FROM booking_seats WHERE screening_id = \\? AND active = 1").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id", "seat_id"}).
			AddRow(7, 10).
			AddRow(7, 11).
			AddRow(9, 3))

	got, err := repo.ActiveSeats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, map[uint64][]uint64{7: {10, 11}, 9: {3}}, got)
}

func TestBookingRepo_ListStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	cutoff := created.Add(time.Hour)
	mock.ExpectQuery("WHERE status IN \\(\\?,\\?\\) AND created_at < \\?").
		WithArgs("PENDING", "PAYMENT_PENDING", cutoff).
		WillReturnRows(bookingRow())

	list, err := repo.ListStale(context.Background(),
		[]model.BookingStatus{model.BookingPending, model.BookingPaymentPending}, cutoff)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(7), list[0].ID)

	none, err := repo.ListStale(context.Background(), nil, cutoff)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBookingRepo_SetEntryStatus_AlreadyEntered(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectExec("UPDATE bookings SET entry_status").
		WithArgs("ENTERED", int64(7), "VALID").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetEntryStatus(context.Background(), 7, model.EntryValid, model.EntryEntered)
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestCatalogRepo_Seats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepo(db)

	mock.ExpectQuery("FROM screenings sc").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hall_id", "row_label", "seat_number", "category", "price"}).
			AddRow(1, 1, "A", 1, "STANDARD", 900).
			AddRow(2, 1, "A", 2, "VIP", 1400))

	seats, err := repo.Seats(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, uint32(1400), seats[1].PriceCents)
	assert.Equal(t, model.SeatVIP, seats[1].Category)
}

func TestCatalogRepo_Seats_MissingScreening(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepo(db)

	mock.ExpectQuery("FROM screenings sc").WillReturnRows(
		sqlmock.NewRows([]string{"id", "hall_id", "row_label", "seat_number", "category", "price"}))
	mock.ExpectQuery("FROM screenings\\s+WHERE id").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Seats(context.Background(), 5)
	assert.ErrorIs(t, err, ErrScreeningNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
