package feed

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub is an in-process Feed.  It is used when Redis is not configured
// (single instance deployments) and in tests.  Each subscriber gets an
// unbounded queue so a slow handler never blocks Publish.
type Hub struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]*hubSub
	log  *logrus.Entry
}

type hubSub struct {
	*subscription
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	handle Handler
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{subs: map[string]map[uint64]*hubSub{}, log: log.WithField("module", "feed.hub")}
}

// Subscribe registers h for entity until Close, ctx cancellation or
// Disconnect.
func (h *Hub) Subscribe(ctx context.Context, entity string, fn Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.next++
	id := h.next
	hs := &hubSub{wake: make(chan struct{}, 1), handle: fn}
	hs.subscription = newSubscription(func() error {
		h.remove(entity, id)
		return nil
	})
	if h.subs[entity] == nil {
		h.subs[entity] = map[uint64]*hubSub{}
	}
	h.subs[entity][id] = hs
	h.mu.Unlock()

	go hs.run(ctx)
	return hs, nil
}

// Publish queues ev for every subscriber of ev.Entity.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	targets := make([]*hubSub, 0, len(h.subs[ev.Entity]))
	for _, s := range h.subs[ev.Entity] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.push(ev)
	}
	return nil
}

// Disconnect ends every subscription of entity with ErrDisconnected,
// as a dropped broker connection would.
func (h *Hub) Disconnect(entity string) {
	h.mu.Lock()
	targets := h.subs[entity]
	delete(h.subs, entity)
	h.mu.Unlock()
	for _, s := range targets {
		s.end(ErrDisconnected)
	}
	h.log.WithField("entity", entity).Warn("subscribers disconnected")
}

// Subscribers returns the number of live subscriptions for entity.
func (h *Hub) Subscribers(entity string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[entity])
}

func (h *Hub) remove(entity string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[entity], id)
	if len(h.subs[entity]) == 0 {
		delete(h.subs, entity)
	}
}

func (s *hubSub) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *hubSub) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.end(ctx.Err())
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			if s.ended() {
				return
			}
			s.handle(ev)
		}
	}
}
