package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservations/internal/auth"
)

// Session returns the session stored by JWTAuth.
func Session(c echo.Context) (auth.Session, bool) {
	s, ok := c.Get(ctxSession).(auth.Session)
	return s, ok
}

// UserID returns the authenticated user id, or 0.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(ctxUserID).(uint64)
	return id
}

// RawToken returns the access token JWTAuth accepted.
func RawToken(c echo.Context) string {
	t, _ := c.Get(ctxToken).(string)
	return t
}

// subject identifies the caller for rate-limit keys.
func subject(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
