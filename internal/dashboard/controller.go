// Package dashboard keeps one staff client's filtered view of the
// reservation set in step with the store.
//
// A Controller never patches its view.  Every filter change, feed
// event and accepted transition triggers a fresh store query, and a
// query result is applied only if it is newer than the view already
// shown.  Results of queries superseded by a later request, or
// arriving after Dispose, are dropped.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/auth"
	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/projection"
	"github.com/iliyamo/restaurant-reservations/internal/status"
)

// Store is the part of the reservation store a controller uses.
type Store interface {
	Query(ctx context.Context, q model.Query) ([]model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	Update(ctx context.Context, id string, p model.Patch) (model.Reservation, error)
}

// State is the controller lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoading         State = "loading"
	StateReady           State = "ready"
	StateError           State = "error"
	StateDisposed        State = "disposed"
)

// ErrDisposed is returned by every operation after Dispose.
var ErrDisposed = errors.New("dashboard disposed")

// View is one applied projection.  Views are never modified once
// published; a new one replaces the old.
type View struct {
	Seq         uint64              `json:"seq"`
	Filter      model.FilterSpec    `json:"filter"`
	Items       []model.Reservation `json:"items"`
	Active      int                 `json:"active"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Options configures a Controller.  Store, Feed and Auth are required.
type Options struct {
	Store        Store
	Feed         feed.Feed
	Auth         auth.Auth
	Location     *time.Location
	Now          func() time.Time
	Logger       *logrus.Entry
	NoticeBuffer int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

// Controller is the dashboard of one connected staff client.
type Controller struct {
	store  Store
	feed   feed.Feed
	auth   auth.Auth
	loc    *time.Location
	now    func() time.Time
	log    *logrus.Entry
	minBO  time.Duration
	maxBO  time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	seq    atomic.Uint64
	view   atomic.Pointer[View]
	filter atomic.Pointer[model.FilterSpec]

	mu        sync.Mutex
	latest    uint64 // highest sequence applied or failed
	state     State
	err       error
	watching  bool
	disposed  bool
	notices   chan Notice
	updates   chan View
	watchDone chan struct{}
}

// New builds a controller showing f.  Nothing is queried until Start.
func New(opts Options, f model.FilterSpec) *Controller {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = 16
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Auth == nil {
		opts.Auth = auth.None
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:     opts.Store,
		feed:      opts.Feed,
		auth:      opts.Auth,
		loc:       opts.Location,
		now:       opts.Now,
		log:       opts.Logger.WithField("module", "dashboard"),
		minBO:     opts.BackoffMin,
		maxBO:     opts.BackoffMax,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateUnauthenticated,
		notices:   make(chan Notice, opts.NoticeBuffer),
		updates:   make(chan View, 1),
		watchDone: make(chan struct{}),
	}
	c.filter.Store(&f)
	return c
}

// Start performs the first load.  Without a session it returns
// model.ErrAuthRequired and neither queries nor subscribes.  Calling
// Start again behaves like Refresh.
func (c *Controller) Start(ctx context.Context) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	return c.load(ctx)
}

// SetFilter replaces the filter and loads the new projection.
func (c *Controller) SetFilter(ctx context.Context, f model.FilterSpec) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	c.filter.Store(&f)
	return c.load(ctx)
}

// Refresh re-queries with the current filter.  It is also the retry
// path out of the error state.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.load(ctx)
}

// Filter returns the filter the next load will use.
func (c *Controller) Filter() model.FilterSpec { return *c.filter.Load() }

// View returns the latest applied view, or the zero View before the
// first successful load.
func (c *Controller) View() View {
	if v := c.view.Load(); v != nil {
		return *v
	}
	return View{Filter: c.Filter(), Items: []model.Reservation{}}
}

// Updates signals newly applied views.  Only the latest unread view is
// kept.  The channel is closed on Dispose.
func (c *Controller) Updates() <-chan View { return c.updates }

// Notices delivers operator notifications.  They are dropped when the
// buffer is full.  The channel is closed on Dispose.
func (c *Controller) Notices() <-chan Notice { return c.notices }

// Done is closed when the controller is disposed.
func (c *Controller) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err is the failure behind StateError or StateUnauthenticated.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Transition moves reservation id to next.  Invalid edges are reported
// without writing.  The write is conditioned on the status read just
// before, so a concurrent change by another operator surfaces as
// model.ErrConflict.  The view is refreshed from the store afterwards,
// never patched.
func (c *Controller) Transition(ctx context.Context, id string, next model.Status) (model.Reservation, error) {
	if c.isDisposed() {
		return model.Reservation{}, ErrDisposed
	}
	if _, ok := c.session(); !ok {
		return model.Reservation{}, model.ErrAuthRequired
	}

	rec, err := ApplyTransition(ctx, c.store, id, next)
	switch {
	case err == nil:
		_ = c.load(ctx)
		return rec, nil
	case errors.Is(err, status.ErrInvalidTransition):
		c.notify(errorNotice("Transition rejected", err, id, c.now()))
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrConflict):
		c.notify(errorNotice("Reservation changed", err, id, c.now()))
		_ = c.load(ctx)
	default:
		config.LogError(c.log, "dashboard", "Transition", "transition failed",
			logrus.Fields{"reservation_id": id, "to": next}, err)
		c.notify(errorNotice("Could not update reservation", err, id, c.now()))
	}
	return model.Reservation{}, err
}

// Dispose cancels the controller, releases the feed subscription and
// closes Updates and Notices.  It waits for the feed watcher to exit
// and is safe to call more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.state = StateDisposed
	watching := c.watching
	close(c.notices)
	close(c.updates)
	c.mu.Unlock()

	c.cancel()
	if watching {
		<-c.watchDone
	}
}

// ApplyTransition reads id, validates the move to next and writes it
// conditioned on the status it read.
func ApplyTransition(ctx context.Context, store Store, id string, next model.Status) (model.Reservation, error) {
	cur, err := store.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	want, err := status.Apply(cur, next)
	if err != nil {
		return model.Reservation{}, err
	}
	return store.Update(ctx, id, model.Patch{Status: want.Status, ExpectStatus: cur.Status})
}

func (c *Controller) session() (auth.Session, bool) {
	s, ok := c.auth.CurrentSession()
	if !ok {
		c.mu.Lock()
		prev := c.state
		if !c.disposed {
			c.state = StateUnauthenticated
			c.err = model.ErrAuthRequired
		}
		c.mu.Unlock()
		if prev != StateUnauthenticated {
			c.notify(Notice{Kind: NoticeAuthRequired, Title: "Session expired",
				Message: "Sign in again to keep the dashboard live", At: c.now()})
		}
	}
	return s, ok
}

// load queries the store for the current filter and applies the result
// if no newer query has been applied or has failed meanwhile.  The sequence number is
// taken before the filter is read so the highest sequence always
// carries the latest filter.
func (c *Controller) load(ctx context.Context) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	if _, ok := c.session(); !ok {
		return model.ErrAuthRequired
	}
	seq := c.seq.Add(1)
	f := *c.filter.Load()
	c.setState(StateLoading)

	now := c.now().In(c.loc)
	rows, err := c.store.Query(ctx, projection.Query(f, now))
	if err != nil {
		c.fail(seq, err)
		return err
	}
	items := projection.Derive(rows, f, now)
	v := &View{Seq: seq, Filter: f, Items: items, Active: projection.ActiveCount(items), GeneratedAt: now}
	c.apply(v)
	return nil
}

func (c *Controller) apply(v *View) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false
	}
	if v.Seq <= c.latest {
		return false
	}
	c.latest = v.Seq
	c.view.Store(v)
	c.state = StateReady
	c.err = nil

	select {
	case c.updates <- *v:
	default:
		select {
		case <-c.updates:
		default:
		}
		c.updates <- *v
	}

	if !c.watching && c.feed != nil {
		c.watching = true
		go c.watch()
	}
	return true
}

func (c *Controller) fail(seq uint64, err error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if seq < c.latest {
		c.mu.Unlock()
		return
	}
	c.latest = seq
	c.state = StateError
	c.err = err
	c.mu.Unlock()

	c.log.WithError(err).WithField("seq", seq).Warn("query failed; keeping previous view")
	c.notify(errorNotice("Could not load reservations", err, "", c.now()))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if !c.disposed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Controller) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Controller) notify(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	select {
	case c.notices <- n:
	default:
		c.log.WithField("kind", n.Kind).Debug("notice dropped")
	}
}

// watch holds the feed subscription for the controller's lifetime,
// re-subscribing with exponential backoff when the feed drops.  After a
// reconnect the view is refreshed since events may have been missed.
func (c *Controller) watch() {
	defer close(c.watchDone)

	backoff := c.minBO
	reconnect := false
	for {
		if c.ctx.Err() != nil {
			return
		}
		sub, err := c.feed.Subscribe(c.ctx, feed.EntityReservation, c.onEvent)
		if err != nil {
			c.log.WithError(err).Warnf("subscribe failed; retrying in %s", backoff)
			if !sleep(c.ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBO)
			continue
		}
		backoff = c.minBO
		if reconnect {
			_ = c.load(c.ctx)
		}
		reconnect = true

		select {
		case <-c.ctx.Done():
			_ = sub.Close()
			return
		case <-sub.Done():
			err := sub.Err()
			_ = sub.Close()
			if c.ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warnf("feed lost; resubscribing in %s", backoff)
			if !sleep(c.ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBO)
		}
	}
}

func (c *Controller) onEvent(ev feed.Event) {
	if c.ctx.Err() != nil {
		return
	}
	if isNewReservation(ev) {
		c.notify(newReservationNotice(ev.Record, c.now()))
	}
	if err := c.load(c.ctx); err != nil && !errors.Is(err, ErrDisposed) {
		c.log.WithError(err).WithField("event", fmt.Sprintf("%s/%s", ev.Type, ev.Record.ID)).Debug("refresh after event failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
