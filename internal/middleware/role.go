package middleware // middleware provides shared request processing for handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Roles carried in the JWT "role" claim.
const (
    RoleStaff   = "STAFF"   // box office and door staff
    RolePayment = "PAYMENT" // the payment gateway callback
)

// RequireRole returns a middleware function that enforces that the
// authenticated caller has one of the specified roles.  It must run after
// JWTAuth, which stores the role under the "role" key.  A missing or
// foreign role aborts the request with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get("role").(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
