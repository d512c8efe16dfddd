package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/auth"
	"github.com/iliyamo/restaurant-reservations/internal/dashboard"
	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/middleware"
	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// DashboardHandler streams a live dashboard per connection over
// Server-Sent Events.  Each stream owns one dashboard.Controller; the
// filter and transition endpoints address it by session id.
type DashboardHandler struct {
	Store        dashboard.Store
	Feed         feed.Feed
	Sessions     *dashboard.Registry
	Secret       string
	Loc          *time.Location
	Log          *logrus.Entry
	Heartbeat    time.Duration
	NoticeBuffer int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

type filterReq struct {
	Scope  string `json:"scope"`
	Status string `json:"status"`
}

type viewResp struct {
	dashboard.View
	Items []staffRow `json:"items"`
}

func present(v dashboard.View) viewResp {
	return viewResp{View: v, Items: rows(v.Items)}
}

// Stream opens the dashboard.  Events: session (the id to address
// commands to), view (every applied projection) and notice.
func (h *DashboardHandler) Stream(c echo.Context) error {
	f, err := model.ParseFilter(c.QueryParam("scope"), c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	sess, ok := middleware.Session(c)
	if !ok {
		return writeError(c, model.ErrAuthRequired)
	}
	log := h.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"user_id": sess.UserID, "remote": c.RealIP()})

	ctrl := dashboard.New(dashboard.Options{
		Store:        h.Store,
		Feed:         h.Feed,
		Auth:         auth.NewTokenAuth(h.Secret, middleware.RawToken(c), model.StaffRoles...),
		Location:     h.Loc,
		Logger:       log,
		NoticeBuffer: h.NoticeBuffer,
		BackoffMin:   h.BackoffMin,
		BackoffMax:   h.BackoffMax,
	}, f)
	defer ctrl.Dispose()

	ctx := c.Request().Context()
	startErr := ctrl.Start(ctx)
	if errors.Is(startErr, model.ErrAuthRequired) {
		return writeError(c, startErr)
	}

	id := h.Sessions.Add(sess.UserID, ctrl)
	defer h.Sessions.Remove(id)
	log = log.WithField("session", id)
	log.Info("dashboard opened")
	defer log.Info("dashboard closed")

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "session", echo.Map{"id": id, "filter": f}); err != nil {
		return nil
	}
	if startErr != nil {
		// first load failed; show the empty view, the error notice follows
		if err := writeEvent(w, "view", present(ctrl.View())); err != nil {
			return nil
		}
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ctrl.Updates():
			if !ok {
				return nil
			}
			if err := writeEvent(w, "view", present(v)); err != nil {
				return nil
			}
		case n, ok := <-ctrl.Notices():
			if !ok {
				return nil
			}
			if err := writeEvent(w, "notice", n); err != nil {
				return nil
			}
			if n.Kind == dashboard.NoticeAuthRequired {
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// SetFilter changes the filter of a live dashboard and returns the new
// view.  The stream receives it too.
func (h *DashboardHandler) SetFilter(c echo.Context) error {
	ctrl, err := h.Sessions.Get(c.Param("session"), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	var req filterReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	f, err := model.ParseFilter(req.Scope, req.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := ctrl.SetFilter(c.Request().Context(), f); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, present(ctrl.View()))
}

// Transition routes an operator command through a live dashboard.
func (h *DashboardHandler) Transition(c echo.Context) error {
	ctrl, err := h.Sessions.Get(c.Param("session"), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	var req transitionReq
	if err := c.Bind(&req); err != nil || req.ID == "" {
		return badRequest(c, "id and status required")
	}
	next, err := model.ParseStatus(req.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	rec, err := ctrl.Transition(c.Request().Context(), req.ID, next)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows([]model.Reservation{rec})[0])
}

func writeEvent(w *echo.Response, name string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body); err != nil {
		return err
	}
	w.Flush()
	return nil
}
