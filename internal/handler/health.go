package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a simple liveness endpoint used by load balancers and
// monitoring systems.  It returns a plain text "ok" with status 200.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Pinger is anything whose reachability gates readiness, such as *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Ready returns a readiness handler that reports 503 while storage is
// unreachable.  A nil pinger (in-memory storage) is always ready.
func Ready(p Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if p == nil {
            return c.JSON(http.StatusOK, echo.Map{"status": "ready", "storage": "memory"})
        }
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := p.PingContext(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
        }
        return c.JSON(http.StatusOK, echo.Map{"status": "ready", "storage": "mysql"})
    }
}
