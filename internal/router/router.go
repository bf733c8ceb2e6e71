package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/cinema-seat-booking/internal/handler"
)

// RegisterRoutes registers the unauthenticated health endpoints on the
// provided Echo instance.  /healthz answers as long as the process runs;
// /readyz also checks storage.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready)
}
