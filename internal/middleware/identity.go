package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Identity resolves the calling user and stores it under "user_id" in the
// Echo context.  Two principal carriers are accepted: a Bearer JWT whose
// sub claim names the user, or a plain X-User-ID header for trusted
// gateway traffic.  Requests carrying neither are rejected with 401.
func Identity(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				raw := strings.TrimPrefix(auth, "Bearer ")
				tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, echo.ErrUnauthorized
					}
					return []byte(jwtSecret), nil
				})
				if err != nil || !tok.Valid {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				claims, ok := tok.Claims.(jwt.MapClaims)
				if !ok {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
				}
				sub, _ := claims["sub"].(string)
				if sub == "" {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no subject"})
				}
				c.Set("user_id", sub)
				return next(c)
			}
			if id := c.Request().Header.Get("X-User-ID"); id != "" {
				c.Set("user_id", id)
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing user identity"})
		}
	}
}

// UserID returns the identity stored by Identity, or "" when the route is
// not wrapped by it.
func UserID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok {
		return v
	}
	return ""
}

// RequestedPriority returns the client's X-User-Priority header, used by
// the queued path to pick a band.  May be empty.
func RequestedPriority(c echo.Context) string {
	return c.Request().Header.Get("X-User-Priority")
}
