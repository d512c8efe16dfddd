package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservations/internal/handler"
	"github.com/iliyamo/restaurant-reservations/internal/middleware"
	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// RegisterStaff registers the reservation desk under /v1/staff.  Every
// route needs a JWT carrying an ADMIN or STAFF role.
func RegisterStaff(e *echo.Echo, s *handler.StaffHandler, d *handler.DashboardHandler, jwtSecret string) {
	g := e.Group("/v1/staff", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.StaffRoles...))

	g.GET("/reservations", s.List)
	g.POST("/reservations/:id/status", s.Transition)

	g.GET("/dashboard", d.Stream)
	g.PUT("/dashboard/:session/filter", d.SetFilter)
	g.POST("/dashboard/:session/transitions", d.Transition)
}
