package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/dashboard"
	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/middleware"
	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/repository"
	"github.com/iliyamo/restaurant-reservations/internal/service"
	"github.com/iliyamo/restaurant-reservations/internal/utils"
)

const secret = "handler-secret"

type memStore struct {
	mu           sync.Mutex
	recs         map[string]model.Reservation
	order        []string
	n            int
	beforeUpdate func(m *memStore, id string)
}

func newMemStore(recs ...model.Reservation) *memStore {
	m := &memStore{recs: map[string]model.Reservation{}}
	for _, r := range recs {
		m.recs[r.ID] = r
		m.order = append(m.order, r.ID)
	}
	return m
}

func (m *memStore) Create(_ context.Context, in model.NewReservation) (model.Reservation, error) {
	in = in.Normalize()
	if err := in.Validate("2024-01-01"); err != nil {
		return model.Reservation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	r := model.Reservation{ID: fmt.Sprintf("r-%d", m.n), FirstName: in.FirstName, LastName: in.LastName,
		Phone: in.Phone, Date: in.Date, Time: in.Time, PartySize: in.PartySize, Status: model.StatusPending}
	m.recs[r.ID] = r
	m.order = append(m.order, r.ID)
	return r, nil
}

func (m *memStore) Query(_ context.Context, q model.Query) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Reservation{}
	for _, id := range m.order {
		r := m.recs[id]
		if q.From != "" && r.Date < q.From || q.To != "" && r.Date > q.To {
			continue
		}
		if q.Status != "" && q.Status != model.StatusAny && q.Status != r.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return model.Reservation{}, model.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Update(_ context.Context, id string, p model.Patch) (model.Reservation, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(m, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return model.Reservation{}, model.ErrNotFound
	}
	if p.ExpectStatus != "" && r.Status != p.ExpectStatus {
		return model.Reservation{}, &model.ConflictError{ID: id, Expected: p.ExpectStatus, Actual: r.Status}
	}
	r.Status = p.Status
	m.recs[id] = r
	return r, nil
}

func rec(id, date, tm string, s model.Status) model.Reservation {
	return model.Reservation{ID: id, FirstName: "Guest", LastName: id, Phone: "600000000",
		Date: date, Time: tm, PartySize: 2, Status: s}
}

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, fmt.Sprintf("u%d@example.com", uid), role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func call(e *echo.Echo, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/ok", Health(pinger{}))
	e.GET("/down", Health(pinger{err: errors.New("gone")}))

	require.Equal(t, http.StatusOK, call(e, http.MethodGet, "/ok", "", "").Code)
	rr := call(e, http.MethodGet, "/down", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","db":"unreachable"}`, rr.Body.String())
}

func TestPublicBooking(t *testing.T) {
	t.Parallel()

	h := NewReservationHandler(newMemStore(), nil)
	e := echo.New()
	e.GET("/v1/slots", h.Slots)
	e.POST("/v1/reservations", h.Create)

	rr := call(e, http.MethodGet, "/v1/slots", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"21:30"`)

	rr = call(e, http.MethodPost, "/v1/reservations",
		`{"first_name":"Ana","last_name":"Ruiz","phone":"612 345 678","date":"2030-05-01","time":"21:00","party_size":4}`, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var got model.Reservation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, "612345678", got.Phone)

	rr = call(e, http.MethodPost, "/v1/reservations",
		`{"first_name":"Ana","last_name":"Ruiz","phone":"12","date":"2030-05-01","time":"18:00","party_size":13}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body.Fields, "phone")
	require.Contains(t, body.Fields, "time")
	require.Contains(t, body.Fields, "party_size")

	require.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/reservations", `{"party_size":"x"}`, "").Code)
}

func staffEcho(store dashboard.Store) *echo.Echo {
	e := echo.New()
	s := NewStaffHandler(store, time.UTC, nil)
	s.Now = func() time.Time { return time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC) }
	g := e.Group("/v1/staff", middleware.JWTAuth(secret), middleware.RequireRole(model.StaffRoles...))
	g.GET("/reservations", s.List)
	g.POST("/reservations/:id/status", s.Transition)
	return e
}

func TestStaffList(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		rec("b", "2024-01-10", "13:00", model.StatusPending),
		rec("a", "2024-01-09", "21:00", model.StatusConfirmed),
		rec("old", "2024-01-01", "13:00", model.StatusCompleted),
	)
	e := staffEcho(store)

	require.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/staff/reservations", "", "").Code)
	require.Equal(t, http.StatusForbidden,
		call(e, http.MethodGet, "/v1/staff/reservations", "", bearer(t, 1, "CUSTOMER")).Code)
	require.Equal(t, http.StatusBadRequest,
		call(e, http.MethodGet, "/v1/staff/reservations?scope=yesterday", "", bearer(t, 1, model.RoleStaff)).Code)

	rr := call(e, http.MethodGet, "/v1/staff/reservations?scope=this-week", "", bearer(t, 1, model.RoleStaff))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Active int `json:"active"`
		Items  []struct {
			ID          string   `json:"id"`
			StatusLabel string   `json:"status_label"`
			Allowed     []string `json:"allowed"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.Equal(t, "a", body.Items[0].ID)
	require.Equal(t, "Confirmed", body.Items[0].StatusLabel)
	require.ElementsMatch(t, []string{"seated", "cancelled"}, body.Items[0].Allowed)
	require.Equal(t, "b", body.Items[1].ID)
	require.Equal(t, 2, body.Active)
}

func TestStaffTransition(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		rec("p", "2024-01-09", "13:00", model.StatusPending),
		rec("s", "2024-01-09", "13:00", model.StatusSeated),
		rec("race", "2024-01-09", "13:00", model.StatusPending),
	)
	store.beforeUpdate = func(m *memStore, id string) {
		if id == "race" {
			m.mu.Lock()
			r := m.recs[id]
			r.Status = model.StatusCancelled
			m.recs[id] = r
			m.mu.Unlock()
		}
	}
	e := staffEcho(store)
	tok := bearer(t, 3, model.RoleAdmin)

	rr := call(e, http.MethodPost, "/v1/staff/reservations/p/status", `{"status":"confirmed"}`, tok)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"confirmed"`)

	rr = call(e, http.MethodPost, "/v1/staff/reservations/s/status", `{"status":"confirmed"}`, tok)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	got, _ := store.Get(context.Background(), "s")
	require.Equal(t, model.StatusSeated, got.Status)

	require.Equal(t, http.StatusNotFound,
		call(e, http.MethodPost, "/v1/staff/reservations/nope/status", `{"status":"confirmed"}`, tok).Code)
	require.Equal(t, http.StatusConflict,
		call(e, http.MethodPost, "/v1/staff/reservations/race/status", `{"status":"confirmed"}`, tok).Code)
	require.Equal(t, http.StatusBadRequest,
		call(e, http.MethodPost, "/v1/staff/reservations/p/status", `{"status":"eaten"}`, tok).Code)
}

type fakeUsers struct{ byEmail map[string]model.User }

func (f fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

type fakeTokens struct {
	mu      sync.Mutex
	live    map[string]uint64
	revoked []uint64
}

func (f *fakeTokens) StoreRefresh(_ context.Context, uid uint64, hash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[hash] = uid
	return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.live[hash]
	if !ok {
		return 0, repository.ErrTokenInvalid
	}
	return uid, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, hash)
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, uid uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, id := range f.live {
		if id == uid {
			delete(f.live, h)
		}
	}
	f.revoked = append(f.revoked, uid)
	return nil
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	hash, err := utils.HashPassword("correct horse", 4)
	require.NoError(t, err)
	users := fakeUsers{byEmail: map[string]model.User{
		"staff@example.com": {ID: 1, Email: "staff@example.com", PasswordHash: hash, Role: model.RoleStaff, IsActive: true},
		"guest@example.com": {ID: 2, Email: "guest@example.com", PasswordHash: hash, Role: "CUSTOMER", IsActive: true},
	}}
	tokens := &fakeTokens{live: map[string]uint64{}}
	a := NewAuthHandler(config.AuthConfig{JWTSecret: secret, AccessTTL: time.Minute, RefreshTTLDays: 1}, users, tokens, nil)

	e := echo.New()
	e.POST("/v1/auth/login", a.Login)
	e.POST("/v1/auth/refresh", a.Refresh)
	e.POST("/v1/auth/logout", a.Logout)
	authed := e.Group("/v1", middleware.JWTAuth(secret))
	authed.GET("/me", a.Me)
	authed.POST("/logout", a.Logout)

	require.Equal(t, http.StatusUnauthorized,
		call(e, http.MethodPost, "/v1/auth/login", `{"email":"staff@example.com","password":"wrong horse"}`, "").Code)
	require.Equal(t, http.StatusUnauthorized,
		call(e, http.MethodPost, "/v1/auth/login", `{"email":"nobody@example.com","password":"correct horse"}`, "").Code)
	require.Equal(t, http.StatusForbidden,
		call(e, http.MethodPost, "/v1/auth/login", `{"email":"guest@example.com","password":"correct horse"}`, "").Code)

	rr := call(e, http.MethodPost, "/v1/auth/login", `{"email":" Staff@Example.com ","password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var pair authResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))
	require.Equal(t, model.RoleStaff, pair.User.Role)

	rr = call(e, http.MethodGet, "/v1/me", "", "Bearer "+pair.Access.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"email":"staff@example.com"`)

	rr = call(e, http.MethodPost, "/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, pair.Refresh.Token), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rotated authResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rotated))
	require.NotEqual(t, pair.Refresh.Token, rotated.Refresh.Token)

	// the old refresh token was revoked by the rotation
	require.Equal(t, http.StatusUnauthorized,
		call(e, http.MethodPost, "/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, pair.Refresh.Token), "").Code)

	require.Equal(t, http.StatusNoContent,
		call(e, http.MethodPost, "/v1/auth/logout", fmt.Sprintf(`{"refresh_token":%q}`, rotated.Refresh.Token), "").Code)
	require.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/auth/logout", "", "").Code)
	require.Equal(t, http.StatusNoContent, call(e, http.MethodPost, "/v1/logout", "", "Bearer "+pair.Access.Token).Code)
	require.Equal(t, []uint64{1}, tokens.revoked)
}

type sseEvent struct {
	Name string
	Data string
}

func readEvents(body *bufio.Reader, out chan<- sseEvent) {
	defer close(out)
	var ev sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func waitEvent(t *testing.T, events <-chan sseEvent, name string, match func(string) bool) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed while waiting for %s", name)
			if ev.Name == name && (match == nil || match(ev.Data)) {
				return ev.Data
			}
		case <-deadline:
			t.Fatalf("no %s event", name)
			return ""
		}
	}
}

func TestDashboardStream(t *testing.T) {
	t.Parallel()

	hub := feed.NewHub(nil)
	store := service.NewReservationService(newMemStore(
		rec("a", "2024-01-09", "13:00", model.StatusPending),
		rec("b", "2024-01-08", "20:00", model.StatusConfirmed),
	), hub, nil, nil)
	d := &DashboardHandler{
		Store:      store,
		Feed:       hub,
		Sessions:   dashboard.NewRegistry(),
		Secret:     secret,
		Loc:        time.UTC,
		Heartbeat:  time.Hour,
		BackoffMin: 10 * time.Millisecond,
		BackoffMax: 20 * time.Millisecond,
	}
	e := echo.New()
	g := e.Group("/v1/staff", middleware.JWTAuth(secret), middleware.RequireRole(model.StaffRoles...))
	g.GET("/dashboard", d.Stream)
	g.PUT("/dashboard/:session/filter", d.SetFilter)
	g.POST("/dashboard/:session/transitions", d.Transition)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tok := bearer(t, 5, model.RoleStaff)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/staff/dashboard?scope=all", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, tok)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	events := make(chan sseEvent, 32)
	go readEvents(bufio.NewReader(resp.Body), events)

	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(waitEvent(t, events, "session", nil)), &session))
	require.NotEmpty(t, session.ID)

	var view struct {
		Items []struct {
			ID      string   `json:"id"`
			Status  string   `json:"status"`
			Allowed []string `json:"allowed"`
		} `json:"items"`
		Active int `json:"active"`
	}
	require.NoError(t, json.Unmarshal([]byte(waitEvent(t, events, "view", nil)), &view))
	require.Len(t, view.Items, 2)
	require.Equal(t, "b", view.Items[0].ID)
	require.Equal(t, 2, view.Active)

	base := srv.URL + "/v1/staff/dashboard/" + session.ID
	send := func(method, url, body, auth string) *http.Response {
		r, err := http.NewRequest(method, url, strings.NewReader(body))
		require.NoError(t, err)
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		r.Header.Set(echo.HeaderAuthorization, auth)
		res, err := srv.Client().Do(r)
		require.NoError(t, err)
		t.Cleanup(func() { _ = res.Body.Close() })
		return res
	}

	res := send(http.MethodPost, base+"/transitions", `{"id":"a","status":"confirmed"}`, tok)
	require.Equal(t, http.StatusOK, res.StatusCode)
	waitEvent(t, events, "view", func(data string) bool {
		return strings.Contains(data, `"id":"a"`) && strings.Contains(data, `"status":"confirmed"`) &&
			!strings.Contains(data, `"status":"pending"`)
	})

	res = send(http.MethodPost, base+"/transitions", `{"id":"b","status":"completed"}`, tok)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	notice := waitEvent(t, events, "notice", nil)
	require.Contains(t, notice, `"kind":"error"`)

	res = send(http.MethodPut, base+"/filter", `{"scope":"all","status":"pending"}`, tok)
	require.Equal(t, http.StatusOK, res.StatusCode)
	waitEvent(t, events, "view", func(data string) bool { return strings.Contains(data, `"items":[]`) })

	res = send(http.MethodPut, base+"/filter", `{"scope":"all"}`, bearer(t, 6, model.RoleStaff))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res = send(http.MethodPut, base+"/filter", `{"scope":"someday"}`, tok)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	cancel()
	require.Eventually(t, func() bool { return d.Sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Subscribers(feed.EntityReservation) == 0 }, 2*time.Second, 10*time.Millisecond)
}
