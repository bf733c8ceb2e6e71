package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
    "github.com/iliyamo/cinema-seat-booking/internal/model"
    "github.com/iliyamo/cinema-seat-booking/internal/reservation"
)

// ReservationHandler exposes the anonymous reservation protocol: session
// initialisation, occupancy polling, seat select/deselect, proceeding to
// payment, booking confirmation and cleanup.  Callers identify themselves
// only by the opaque sessionId they choose.
type ReservationHandler struct {
    Engine *reservation.Engine
    Log    *logger.Logger
}

// NewReservationHandler constructs a ReservationHandler.  engine must be
// non-nil.
func NewReservationHandler(engine *reservation.Engine, log *logger.Logger) *ReservationHandler {
    if engine == nil {
        panic("nil engine passed to NewReservationHandler")
    }
    if log == nil {
        log = logger.Discard()
    }
    return &ReservationHandler{Engine: engine, Log: log}
}

type sessionRequest struct {
    SessionID string `json:"sessionId" validate:"required,max=128"`
}

type seatRequest struct {
    SessionID string            `json:"sessionId" validate:"required,max=128"`
    SeatID    uint64            `json:"seatId" validate:"required"`
    Device    *model.DeviceInfo `json:"device,omitempty"`
}

type bookingRequest struct {
    SessionID string         `json:"sessionId" validate:"required,max=128"`
    Customer  model.Customer `json:"customer"`
    Seats     []uint64       `json:"seats" validate:"omitempty,max=50,dive,required"`
}

func occupancyBody(o model.Occupancy) echo.Map {
    return echo.Map{
        "screeningId":   o.ScreeningID,
        "occupiedSeats": o.OccupiedSeats,
        "sessionSeats":  o.SessionSeats,
    }
}

// InitSession handles POST /v1/screenings/:id/session.  It is idempotent
// and returns the occupancy as seen by the session.
func (h *ReservationHandler) InitSession(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req sessionRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    occ, err := h.Engine.InitializeSession(c.Request().Context(), screeningID, req.SessionID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, occupancyBody(occ))
}

// Occupancy handles GET /v1/screenings/:id/occupancy?sessionId=.  The
// sessionId is optional; without it no seat is reported as mine.
func (h *ReservationHandler) Occupancy(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    sessionID := strings.TrimSpace(c.QueryParam("sessionId"))
    occ, err := h.Engine.Occupancy(c.Request().Context(), screeningID, sessionID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, occupancyBody(occ))
}

// SelectSeat handles POST /v1/screenings/:id/seats/select.  A seat held or
// booked by someone else yields 409 with the current occupancy.
func (h *ReservationHandler) SelectSeat(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req seatRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    sel, err := h.Engine.Select(c.Request().Context(), screeningID, req.SessionID, req.SeatID, req.Device)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    body := occupancyBody(sel.Occupancy)
    body["selectedSeat"] = sel.Hold.SeatID
    body["expiresAt"] = sel.Hold.ExpiresAt
    return c.JSON(http.StatusOK, body)
}

// DeselectSeat handles POST /v1/screenings/:id/seats/deselect.  Releasing a
// seat the session no longer owns still succeeds.
func (h *ReservationHandler) DeselectSeat(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req seatRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    occ, err := h.Engine.Deselect(c.Request().Context(), screeningID, req.SessionID, req.SeatID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, occupancyBody(occ))
}

// ProceedToPayment handles POST /v1/screenings/:id/payment.  The payment
// window is server configuration; the client cannot choose it.
func (h *ReservationHandler) ProceedToPayment(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req sessionRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    win, err := h.Engine.ProceedToPayment(c.Request().Context(), screeningID, req.SessionID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, win)
}

// ConfirmBooking handles POST /v1/screenings/:id/bookings.  It returns
// 201 with the PAYMENT_PENDING booking, or 410 when the holds lapsed.
func (h *ReservationHandler) ConfirmBooking(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req bookingRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    b, err := h.Engine.ConfirmBooking(c.Request().Context(), reservation.PromoteRequest{
        ScreeningID: screeningID,
        SessionID:   req.SessionID,
        Customer:    req.Customer,
        SeatIDs:     req.Seats,
    })
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"booking": b})
}

// Cleanup handles DELETE /v1/sessions/:sessionId, the early release sent
// when a client navigates away.
func (h *ReservationHandler) Cleanup(c echo.Context) error {
    n, err := h.Engine.Cleanup(c.Request().Context(), c.Param("sessionId"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"releasedCount": n})
}

// SeatMap handles GET /v1/screenings/:id/seats.
func (h *ReservationHandler) SeatMap(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    scr, seats, err := h.Engine.SeatMap(c.Request().Context(), screeningID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if seats == nil {
        seats = []model.Seat{}
    }
    return c.JSON(http.StatusOK, echo.Map{"screening": scr, "seats": seats})
}

// Ticket handles GET /v1/tickets/:uuid.
func (h *ReservationHandler) Ticket(c echo.Context) error {
    b, err := h.Engine.Ticket(c.Request().Context(), c.Param("uuid"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}
