package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-booking/internal/handler"    // staff handlers
	"github.com/iliyamo/cinema-seat-booking/internal/middleware" // JWT + role middlewares
)

// RegisterStaff registers the JWT-protected endpoints.  The payment
// gateway callback requires the PAYMENT role; everything under
// /v1/staff and the stats endpoint require STAFF.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)

	e.POST("/v1/payments/:bookingId", h.CompletePayment, auth, middleware.RequireRole(middleware.RolePayment))

	// Attach middlewares at group construction time for clarity.
	staff := middleware.RequireRole(middleware.RoleStaff)
	g := e.Group("/v1/staff", auth, staff)

	// ---- Box office ----
	g.POST("/screenings/:id/bookings", h.CounterConfirm)
	g.GET("/screenings/:id/bookings", h.ListBookings)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
	g.POST("/screenings/:id/refresh", h.RefreshScreening)

	// ---- Door ----
	g.POST("/tickets/:uuid/enter", h.CheckIn)

	e.GET("/v1/stats/reservations", h.Stats, auth, staff)
}
