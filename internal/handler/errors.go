package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
    "github.com/iliyamo/cinema-seat-booking/internal/reservation"
)

// RequestValidator adapts validator/v10 to echo.Validator so handlers can
// call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
    return &RequestValidator{v: validator.New()}
}

func (rv *RequestValidator) Validate(i interface{}) error {
    return rv.v.Struct(i)
}

var errInvalidBody = errors.New("invalid request body")

// bindValid binds the request body into dst and validates it.  The
// returned error is safe to show to the client.
func bindValid(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return errInvalidBody
    }
    if err := c.Validate(dst); err != nil {
        return err
    }
    return nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// writeError maps reservation errors to HTTP responses.  Conflicts and
// rejections are part of the protocol and are not logged; storage and
// unexpected failures are.
func writeError(c echo.Context, log *logger.Logger, err error) error {
    var conflict *reservation.ConflictError
    switch {
    case errors.As(err, &conflict):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":         "seat is no longer available",
            "seatId":        conflict.SeatID,
            "occupiedSeats": conflict.Occupancy.OccupiedSeats,
            "sessionSeats":  conflict.Occupancy.SessionSeats,
        })
    case errors.Is(err, reservation.ErrSeatConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "seat is no longer available"})
    case errors.Is(err, reservation.ErrSelectionLimitExceeded):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "selection limit exceeded"})
    case errors.Is(err, reservation.ErrNoActiveHolds):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "no active holds"})
    case errors.Is(err, reservation.ErrScreeningClosed):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "screening is closed for reservations"})
    case errors.Is(err, reservation.ErrPromotionRejected):
        return c.JSON(http.StatusGone, echo.Map{"error": "holds expired or missing"})
    case errors.Is(err, reservation.ErrSessionExpired):
        return c.JSON(http.StatusGone, echo.Map{"error": "session expired"})
    case errors.Is(err, reservation.ErrUnknownSeat):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
    case errors.Is(err, reservation.ErrScreeningNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "screening not found"})
    case errors.Is(err, reservation.ErrBookingNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    case errors.Is(err, reservation.ErrInvalidTransition):
        return c.JSON(http.StatusConflict, echo.Map{"error": "invalid booking status transition"})
    case errors.Is(err, reservation.ErrInvalidSessionID):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
    case errors.Is(err, reservation.ErrStorageUnavailable):
        log.WithError(err).ErrorContext(c.Request().Context(), "storage unavailable", "path", c.Path())
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
    }
    log.WithError(err).ErrorContext(c.Request().Context(), "unexpected error", "path", c.Path())
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
