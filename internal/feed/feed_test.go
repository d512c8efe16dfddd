package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservations/internal/model"
)

type collector struct {
	mu  sync.Mutex
	evs []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.evs...)
}

func event(id string, typ EventType) Event {
	return Event{
		Entity: EntityReservation,
		Type:   typ,
		Record: model.Reservation{ID: id, Status: model.StatusPending},
		At:     time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestHubFanOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := NewHub(nil)
	var a, b collector
	subA, err := hub.Subscribe(ctx, EntityReservation, a.handle)
	require.NoError(t, err)
	subB, err := hub.Subscribe(ctx, EntityReservation, b.handle)
	require.NoError(t, err)
	require.Equal(t, 2, hub.Subscribers(EntityReservation))

	require.NoError(t, hub.Publish(ctx, event("r1", Created)))
	require.NoError(t, hub.Publish(ctx, event("r1", Updated)))
	require.NoError(t, hub.Publish(ctx, Event{Entity: "other", Type: Created}))

	require.Eventually(t, func() bool { return a.len() == 2 && b.len() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, Created, a.all()[0].Type)
	require.Equal(t, Updated, a.all()[1].Type)

	require.NoError(t, subA.Close())
	require.NoError(t, subA.Close())
	require.NoError(t, subA.Err())
	require.Equal(t, 1, hub.Subscribers(EntityReservation))

	require.NoError(t, hub.Publish(ctx, event("r2", Created)))
	require.Eventually(t, func() bool { return b.len() == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, a.len())
	require.NoError(t, subB.Close())
}

func TestHubDisconnectEndsWithError(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	sub, err := hub.Subscribe(context.Background(), EntityReservation, func(Event) {})
	require.NoError(t, err)

	hub.Disconnect(EntityReservation)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	require.ErrorIs(t, sub.Err(), ErrDisconnected)
	require.Equal(t, 0, hub.Subscribers(EntityReservation))
}

func TestHubContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	sub, err := hub.Subscribe(ctx, EntityReservation, func(Event) {})
	require.NoError(t, err)
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	require.ErrorIs(t, sub.Err(), context.Canceled)

	_, err = hub.Subscribe(ctx, EntityReservation, func(Event) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRedisFeedRoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	f := NewRedisFeed(rdb, "test", nil)
	var got collector
	sub, err := f.Subscribe(ctx, EntityReservation, got.handle)
	require.NoError(t, err)

	want := event("r9", Updated)
	require.NoError(t, f.Publish(ctx, want))
	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "r9", got.all()[0].Record.ID)
	require.Equal(t, Updated, got.all()[0].Type)

	require.NoError(t, sub.Close())
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	require.NoError(t, sub.Err())
}

func TestRedisFeedSubscribeFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedisFeed(rdb, "test", nil).Subscribe(ctx, EntityReservation, func(Event) {})
	require.Error(t, err)
}
