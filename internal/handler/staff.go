package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
    "github.com/iliyamo/cinema-seat-booking/internal/model"
    "github.com/iliyamo/cinema-seat-booking/internal/reservation"
)

// StaffHandler serves the JWT-protected endpoints used by box office
// staff, door staff and the payment gateway.  Role checks are done by
// middleware before any method runs.
type StaffHandler struct {
    Engine *reservation.Engine
    Log    *logger.Logger
}

func NewStaffHandler(engine *reservation.Engine, log *logger.Logger) *StaffHandler {
    if engine == nil {
        panic("nil engine passed to NewStaffHandler")
    }
    if log == nil {
        log = logger.Discard()
    }
    return &StaffHandler{Engine: engine, Log: log}
}

type paymentRequest struct {
    Result    string `json:"result" validate:"required,oneof=success failure timeout"`
    Reference string `json:"reference" validate:"max=128"`
}

// CompletePayment handles POST /v1/payments/:bookingId, the gateway's
// success, failure or timeout signal.  Repeating a signal is harmless.
func (h *StaffHandler) CompletePayment(c echo.Context) error {
    bookingID, ok := parseID(c, "bookingId")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    var req paymentRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    b, err := h.Engine.CompletePayment(c.Request().Context(), bookingID,
        reservation.PaymentOutcome(req.Result), req.Reference)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}

// CounterConfirm handles POST /v1/staff/screenings/:id/bookings.  The box
// office terminal selects seats under its own session like any client,
// then promotes and confirms in one call because payment is taken in
// person.
func (h *StaffHandler) CounterConfirm(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    var req bookingRequest
    if err := bindValid(c, &req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    b, err := h.Engine.CounterConfirm(c.Request().Context(), reservation.PromoteRequest{
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

// CancelBooking handles POST /v1/staff/bookings/:id/cancel.
func (h *StaffHandler) CancelBooking(c echo.Context) error {
    bookingID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Engine.CancelBooking(c.Request().Context(), bookingID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}

// CheckIn handles POST /v1/staff/tickets/:uuid/enter.
func (h *StaffHandler) CheckIn(c echo.Context) error {
    b, err := h.Engine.CheckIn(c.Request().Context(), c.Param("uuid"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /v1/staff/screenings/:id/bookings.
func (h *StaffHandler) ListBookings(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    list, err := h.Engine.ScreeningBookings(c.Request().Context(), screeningID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if list == nil {
        list = []model.Booking{}
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// RefreshScreening handles POST /v1/staff/screenings/:id/refresh, issued
// after a screening was changed in the master data so cached copies stop
// being served.
func (h *StaffHandler) RefreshScreening(c echo.Context) error {
    screeningID, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
    }
    s, err := h.Engine.RefreshCatalog(c.Request().Context(), screeningID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"screening": s})
}

// Stats handles GET /v1/stats/reservations.
func (h *StaffHandler) Stats(c echo.Context) error {
    return c.JSON(http.StatusOK, h.Engine.Stats())
}
