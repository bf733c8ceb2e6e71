package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "fmt"
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and role claims into the request context.  It
// guards the staff and payment-gateway routes; anonymous reservation
// sessions never carry a token.  Handlers read the caller via
// `c.Get("user_id")` (always a string) and `c.Get("role")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
    parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    keyFunc := func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            sub, err := claims.GetSubject()
            if err != nil || sub == "" {
                // tokens minted before subjects were strings carry a number
                if v, ok := claims["sub"]; ok && v != nil {
                    sub = fmt.Sprint(v)
                } else {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
                }
            }
            role, _ := claims["role"].(string)

            c.Set("user_id", sub)
            c.Set("role", role)
            return next(c)
        }
    }
}
