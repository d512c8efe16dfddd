// Package feed carries create/update notifications for stored
// reservations to every subscribed staff session.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// EntityReservation is the only entity published today.
const EntityReservation = "reservation"

// EventType distinguishes inserts from updates.
type EventType string

const (
	Created EventType = "created"
	Updated EventType = "updated"
)

// Event is one change notification.  Record is the row as written.
type Event struct {
	Entity string            `json:"entity"`
	Type   EventType         `json:"type"`
	Record model.Reservation `json:"record"`
	At     time.Time         `json:"at"`
}

// Handler receives events for one subscription, one at a time.
type Handler func(Event)

// ErrDisconnected ends a subscription whose transport went away.
var ErrDisconnected = errors.New("feed disconnected")

// Subscription is a live registration.  Done is closed when it ends,
// either through Close or because the transport failed; Err tells the
// two apart (nil after Close).
type Subscription interface {
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Feed is the change stream capability.
type Feed interface {
	Subscribe(ctx context.Context, entity string, h Handler) (Subscription, error)
	Publish(ctx context.Context, ev Event) error
}

// subscription is the Subscription shared by the implementations.
// release runs at most once, on Close.
type subscription struct {
	done    chan struct{}
	endOnce sync.Once
	relOnce sync.Once
	mu      sync.Mutex
	err     error
	release func() error
}

func newSubscription(release func() error) *subscription {
	return &subscription{done: make(chan struct{}), release: release}
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end marks the subscription finished with err.  Later calls are ignored.
func (s *subscription) end(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) Close() error {
	s.end(nil)
	var err error
	s.relOnce.Do(func() {
		if s.release != nil {
			err = s.release()
		}
	})
	return err
}
