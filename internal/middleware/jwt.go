// Package middleware holds the echo middlewares shared by the routers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservations/internal/auth"
)

// Context keys set by JWTAuth.
const (
	ctxUserID  = "user_id"
	ctxRole    = "role"
	ctxSession = "session"
	ctxToken   = "token"
)

// JWTAuth validates the access token and stores the session in the
// context.  The token is read from the Authorization header, or from the
// access_token query parameter since browser EventSource clients cannot
// set headers.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			s, err := auth.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxUserID, s.UserID)
			c.Set(ctxRole, s.Role)
			c.Set(ctxSession, s)
			c.Set(ctxToken, raw)
			return next(c)
		}
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}
