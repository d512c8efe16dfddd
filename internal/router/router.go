// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservations/internal/handler"
	"github.com/iliyamo/restaurant-reservations/internal/middleware"
	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// RegisterRoutes registers unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic registers the booking endpoints used by guests.  The
// slot catalogue goes through the response cache; creating a booking
// goes through the rate limiter.
func RegisterPublic(e *echo.Echo, r *handler.ReservationHandler, limiter, cache echo.MiddlewareFunc) {
	e.GET("/v1/slots", r.Slots, cache)
	e.POST("/v1/reservations", r.Create, limiter)
}

// RegisterAuth registers staff login, token rotation and logout.  /v1/me
// and the bearer form of logout need a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	authed := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.StaffRoles...))
	authed.GET("/me", a.Me)
	authed.POST("/logout", a.Logout)
}
