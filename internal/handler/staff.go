package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/dashboard"
	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/projection"
	"github.com/iliyamo/restaurant-reservations/internal/status"
)

// StaffHandler serves one-shot staff reads and transitions for clients
// that do not hold a dashboard stream.
type StaffHandler struct {
	Store dashboard.Store
	Loc   *time.Location
	Now   func() time.Time
	Log   *logrus.Entry
}

func NewStaffHandler(store dashboard.Store, loc *time.Location, log *logrus.Entry) *StaffHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StaffHandler{Store: store, Loc: loc, Now: time.Now, Log: log}
}

// staffRow is a reservation plus the statuses it may move to next.
type staffRow struct {
	model.Reservation
	StatusLabel string         `json:"status_label"`
	Allowed     []model.Status `json:"allowed"`
}

type transitionReq struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func rows(items []model.Reservation) []staffRow {
	out := make([]staffRow, 0, len(items))
	for _, r := range items {
		out = append(out, staffRow{Reservation: r, StatusLabel: r.Status.Label(), Allowed: status.Allowed(r.Status)})
	}
	return out
}

// List returns the projection for ?scope=&status=.
func (h *StaffHandler) List(c echo.Context) error {
	f, err := model.ParseFilter(c.QueryParam("scope"), c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := h.Now().In(h.Loc)
	snapshot, err := h.Store.Query(ctx, projection.Query(f, now))
	if err != nil {
		config.LogError(h.Log, "handler", "StaffHandler.List", "query reservations failed", f, err)
		return writeError(c, err)
	}
	items := projection.Derive(snapshot, f, now)
	return c.JSON(http.StatusOK, echo.Map{
		"filter": f,
		"items":  rows(items),
		"active": projection.ActiveCount(items),
	})
}

// Transition moves /:id to the requested status.
func (h *StaffHandler) Transition(c echo.Context) error {
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	next, err := model.ParseStatus(req.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id := c.Param("id")
	rec, err := dashboard.ApplyTransition(ctx, h.Store, id, next)
	if err != nil {
		if !errors.Is(err, status.ErrInvalidTransition) && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrConflict) {
			config.LogError(h.Log, "handler", "StaffHandler.Transition", "transition failed",
				logrus.Fields{"reservation_id": id, "to": next}, err)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows([]model.Reservation{rec})[0])
}
