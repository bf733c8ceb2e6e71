package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// BookingRepo persists bookings and their seats in MySQL.  Every booking
// seat row carries an `active` column that is 1 while the booking is
// PENDING, PAYMENT_PENDING or CONFIRMED and NULL afterwards; the unique
// key (screening_id, seat_id, active) therefore lets each seat belong to
// at most one active booking per screening while keeping history rows.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, uuid, screening_id, session_id, status, entry_status, amount_cents,
	customer_name, customer_email, customer_phone, payment_ref, created_at, updated_at`

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// Create inserts the booking and all of its seats in one transaction.  On
// success b.ID is populated.  A seat that already belongs to an active
// booking of the screening yields ErrSeatTaken and nothing is written.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO bookings (uuid, screening_id, session_id, status, entry_status, amount_cents,
		customer_name, customer_email, customer_phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		b.UUID, b.ScreeningID, b.SessionID, string(b.Status), string(b.EntryStatus), b.AmountCents,
		b.Customer.Name, b.Customer.Email, nullString(b.Customer.Phone), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("booking id: %w", err)
	}

	if len(b.Seats) > 0 {
		query := `INSERT INTO booking_seats (booking_id, screening_id, seat_id, price_cents, active) VALUES `
		args := make([]interface{}, 0, len(b.Seats)*4)
		for i, s := range b.Seats {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, 1)"
			args = append(args, id, b.ScreeningID, s.SeatID, s.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isDuplicate(err) {
				return ErrSeatTaken
			}
			return fmt.Errorf("insert booking seats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	committed = true
	b.ID = uint64(id)
	return nil
}

// UpdateStatus moves a booking from status from to status to.  The update
// is conditional on the current status so that two concurrent signals for
// the same booking cannot both succeed.  Leaving the active set clears the
// `active` flag of the booking's seats in the same transaction.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus, paymentRef *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `UPDATE bookings SET status = ?, payment_ref = COALESCE(?, payment_ref), updated_at = UTC_TIMESTAMP()
		WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), paymentRef, id, string(from))
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrChanged(ctx, tx, id)
	}

	if !to.Active() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE booking_seats SET active = NULL WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("release booking seats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *BookingRepo) missingOrChanged(ctx context.Context, tx *sql.Tx, id uint64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStatusChanged
}

// SetEntryStatus moves the admission state of a ticket conditionally.
func (r *BookingRepo) SetEntryStatus(ctx context.Context, id uint64, from, to model.EntryStatus) error {
	const q = `UPDATE bookings SET entry_status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND entry_status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// Get returns a booking with its seats, or ErrNotFound.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return r.getWithSeats(ctx, row)
}

// GetByUUID returns the booking with the given ticket uuid, or ErrNotFound.
func (r *BookingRepo) GetByUUID(ctx context.Context, uuid string) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE uuid = ?`, uuid)
	return r.getWithSeats(ctx, row)
}

func (r *BookingRepo) getWithSeats(ctx context.Context, row *sql.Row) (*model.Booking, error) {
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT booking_id, screening_id, seat_id, price_cents FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.BookingSeat
		if err := rows.Scan(&s.BookingID, &s.ScreeningID, &s.SeatID, &s.PriceCents); err != nil {
			return nil, err
		}
		b.Seats = append(b.Seats, s)
	}
	return b, rows.Err()
}

// ActiveSeats returns, per active booking of a screening, the booked seat ids.
func (r *BookingRepo) ActiveSeats(ctx context.Context, screeningID uint64) (map[uint64][]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT booking_id, seat_id FROM booking_seats WHERE screening_id = ? AND active = 1`, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]uint64)
	for rows.Next() {
		var bookingID, seatID uint64
		if err := rows.Scan(&bookingID, &seatID); err != nil {
			return nil, err
		}
		out[bookingID] = append(out[bookingID], seatID)
	}
	return out, rows.Err()
}

// ListStale returns bookings in one of statuses created before the given
// time, oldest first.  Seats are not loaded.
func (r *BookingRepo) ListStale(ctx context.Context, statuses []model.BookingStatus, before time.Time) ([]model.Booking, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, 0, len(statuses)+1)
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, before)
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE status IN (` + strings.Join(placeholders, ",") +
		`) AND created_at < ? ORDER BY id LIMIT 500`
	return r.list(ctx, q, args...)
}

// ListByScreening returns every booking of a screening with its seats,
// newest first.
func (r *BookingRepo) ListByScreening(ctx context.Context, screeningID uint64) ([]model.Booking, error) {
	list, err := r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE screening_id = ? ORDER BY id DESC`, screeningID)
	if err != nil || len(list) == 0 {
		return list, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT booking_id, screening_id, seat_id, price_cents FROM booking_seats WHERE screening_id = ? ORDER BY booking_id, seat_id`, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	idx := make(map[uint64]int, len(list))
	for i := range list {
		idx[list[i].ID] = i
	}
	for rows.Next() {
		var s model.BookingSeat
		if err := rows.Scan(&s.BookingID, &s.ScreeningID, &s.SeatID, &s.PriceCents); err != nil {
			return nil, err
		}
		if i, ok := idx[s.BookingID]; ok {
			list[i].Seats = append(list[i].Seats, s)
		}
	}
	return list, rows.Err()
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b          model.Booking
		status     string
		entry      string
		phone      sql.NullString
		paymentRef sql.NullString
	)
	err := s.Scan(&b.ID, &b.UUID, &b.ScreeningID, &b.SessionID, &status, &entry, &b.AmountCents,
		&b.Customer.Name, &b.Customer.Email, &phone, &paymentRef, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.EntryStatus = model.EntryStatus(entry)
	if phone.Valid {
		b.Customer.Phone = phone.String
	}
	if paymentRef.Valid {
		pr := paymentRef.String
		b.PaymentRef = &pr
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
