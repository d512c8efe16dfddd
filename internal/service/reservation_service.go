// Package service puts the change feed and the transition queue in
// front of the reservation store, so every accepted write is announced.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/queue"
)

// Store is the reservation store capability.
type Store interface {
	Create(ctx context.Context, in model.NewReservation) (model.Reservation, error)
	Query(ctx context.Context, q model.Query) ([]model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	Update(ctx context.Context, id string, p model.Patch) (model.Reservation, error)
}

// TransitionPublisher hands status changes to notification consumers.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, ev queue.TransitionEvent) error
}

// ReservationService implements Store.  Writes go to the wrapped store
// first; events are published only after the store accepted them, and
// publish failures are logged because the write already happened.
type ReservationService struct {
	store          Store
	feed           feed.Feed
	pub            TransitionPublisher
	log            *logrus.Entry
	now            func() time.Time
	publishTimeout time.Duration
}

// NewReservationService wires store to f.  pub may be nil when no
// broker is configured.
func NewReservationService(store Store, f feed.Feed, pub TransitionPublisher, log *logrus.Entry) *ReservationService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReservationService{
		store:          store,
		feed:           f,
		pub:            pub,
		log:            log.WithField("module", "service.reservation"),
		now:            time.Now,
		publishTimeout: 5 * time.Second,
	}
}

func (s *ReservationService) Create(ctx context.Context, in model.NewReservation) (model.Reservation, error) {
	rec, err := s.store.Create(ctx, in)
	if err != nil {
		return model.Reservation{}, err
	}
	s.announce(ctx, feed.Created, rec)
	return rec, nil
}

func (s *ReservationService) Query(ctx context.Context, q model.Query) ([]model.Reservation, error) {
	return s.store.Query(ctx, q)
}

func (s *ReservationService) Get(ctx context.Context, id string) (model.Reservation, error) {
	return s.store.Get(ctx, id)
}

// Update writes p and, when the status actually moved, publishes an
// update event and a transition message.
func (s *ReservationService) Update(ctx context.Context, id string, p model.Patch) (model.Reservation, error) {
	from := p.ExpectStatus
	if from == "" {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return model.Reservation{}, err
		}
		from = cur.Status
	}
	rec, err := s.store.Update(ctx, id, p)
	if err != nil {
		return model.Reservation{}, err
	}
	if rec.Status == from {
		return rec, nil
	}
	s.announce(ctx, feed.Updated, rec)
	s.notifyTransition(ctx, rec, from)
	return rec, nil
}

func (s *ReservationService) announce(ctx context.Context, typ feed.EventType, rec model.Reservation) {
	if s.feed == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	ev := feed.Event{Entity: feed.EntityReservation, Type: typ, Record: rec, At: s.now().UTC()}
	if err := s.feed.Publish(pctx, ev); err != nil {
		config.LogError(s.log, "service", "announce", "feed publish failed",
			logrus.Fields{"reservation_id": rec.ID, "type": typ}, err)
	}
}

func (s *ReservationService) notifyTransition(ctx context.Context, rec model.Reservation, from model.Status) {
	if s.pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.pub.PublishTransition(pctx, queue.NewTransitionEvent(rec, from, s.now())); err != nil {
		config.LogError(s.log, "service", "notifyTransition", "transition publish failed",
			logrus.Fields{"reservation_id": rec.ID, "from": from, "to": rec.Status}, err)
	}
}
