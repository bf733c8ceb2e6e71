package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-booking/internal/handler"
)

// RegisterReservation registers the anonymous reservation endpoints under
// /v1.  No JWT is involved: callers are identified by the sessionId they
// send.  limiter wraps every route and may be a pass-through.
func RegisterReservation(e *echo.Echo, h *handler.ReservationHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", limiter)

	g.GET("/screenings/:id/seats", h.SeatMap)
	g.POST("/screenings/:id/session", h.InitSession)
	g.GET("/screenings/:id/occupancy", h.Occupancy)
	g.POST("/screenings/:id/seats/select", h.SelectSeat)
	g.POST("/screenings/:id/seats/deselect", h.DeselectSeat)
	g.POST("/screenings/:id/payment", h.ProceedToPayment)
	g.POST("/screenings/:id/bookings", h.ConfirmBooking)
	g.DELETE("/sessions/:sessionId", h.Cleanup)
	g.GET("/tickets/:uuid", h.Ticket)
}
