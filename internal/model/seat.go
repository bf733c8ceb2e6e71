package model

// Seat describes a physical seat in a hall as seen by a screening.  The
// price is not a property of the seat itself: it comes from the
// screening's price list for the seat's category and is resolved by the
// catalog when the seat map is loaded.
//
// Fields:
//  ID         – primary key identifier.
//  HallID     – hall to which this seat belongs.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  Category   – STANDARD, VIP or ACCESSIBLE.
//  PriceCents – screening-scoped price for the category.
type Seat struct {
    ID         uint64 `json:"seatId"`     // seats.id
    HallID     uint64 `json:"hallId"`     // seats.hall_id
    RowLabel   string `json:"rowLabel"`   // seats.row_label
    SeatNumber uint32 `json:"seatNumber"` // seats.seat_number
    Category   string `json:"category"`   // seats.category
    PriceCents uint32 `json:"priceCents"` // screening_prices.price_cents or screenings.base_price_cents
}

// Seat categories.
const (
    SeatStandard   = "STANDARD"
    SeatVIP        = "VIP"
    SeatAccessible = "ACCESSIBLE"
)
