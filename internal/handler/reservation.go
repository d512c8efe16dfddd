package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// Creator is the booking side of the store.
type Creator interface {
	Create(ctx context.Context, in model.NewReservation) (model.Reservation, error)
}

// ReservationHandler serves the public booking endpoints.
type ReservationHandler struct {
	Store Creator
	Log   *logrus.Entry
}

func NewReservationHandler(store Creator, log *logrus.Entry) *ReservationHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReservationHandler{Store: store, Log: log}
}

// Create books a table.  The record starts pending and staff see it on
// their dashboards through the change feed.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req model.NewReservation
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Store.Create(ctx, req)
	if err != nil {
		if !errors.Is(err, model.ErrValidation) {
			config.LogError(h.Log, "handler", "ReservationHandler.Create", "create reservation failed", nil, err)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// Slots lists the bookable times and party size bounds.
func (h *ReservationHandler) Slots(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"slots":          model.ServiceSlots,
		"min_party_size": model.MinPartySize,
		"max_party_size": model.MaxPartySize,
	})
}
