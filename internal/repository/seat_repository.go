package repository // repository defines data access for the seat catalog

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors for sentinel checks

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// CatalogRepo reads screenings and their seat maps.  The reservation
// engine never writes through it.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo with the given DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// Screening returns one screening or ErrScreeningNotFound.
func (r *CatalogRepo) Screening(ctx context.Context, id uint64) (*model.Screening, error) {
	const q = `SELECT id, hall_id, movie_title, starts_at, ends_at, base_price_cents, status
	           FROM screenings
	           WHERE id = ?`
	var s model.Screening
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.HallID, &s.MovieTitle, &s.StartsAt, &s.EndsAt, &s.BasePriceCents, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScreeningNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Seats returns the active seats of the screening's hall ordered by
// row_label then seat_number.  Each seat carries the screening price of
// its category, or the screening base price when the price list has no
// entry for it.
func (r *CatalogRepo) Seats(ctx context.Context, screeningID uint64) ([]model.Seat, error) {
	const q = `SELECT s.id, s.hall_id, s.row_label, s.seat_number, s.category,
	                  COALESCE(p.price_cents, sc.base_price_cents)
	           FROM screenings sc
	           JOIN seats s ON s.hall_id = sc.hall_id AND s.is_active = 1
	           LEFT JOIN screening_prices p ON p.screening_id = sc.id AND p.category = s.category
	           WHERE sc.id = ?
	           ORDER BY s.row_label, s.seat_number`
	rows, err := r.db.QueryContext(ctx, q, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.HallID, &s.RowLabel, &s.SeatNumber, &s.Category, &s.PriceCents); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		// distinguish an empty hall from a missing screening
		if _, err := r.Screening(ctx, screeningID); err != nil {
			return nil, err
		}
	}
	return seats, nil
}
