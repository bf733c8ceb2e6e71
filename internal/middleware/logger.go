package middleware

import (
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
)

// RequestLogger logs every served request through the structured logger.
// The request id set by echo's RequestID middleware is attached when present.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req := c.Request()
            l := log
            if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
                l = l.WithRequestID(id)
            }
            l.LogHTTPRequest(req.Context(), req.Method, c.Path(), c.Response().Status, time.Since(start), c.RealIP())
            return nil
        }
    }
}
