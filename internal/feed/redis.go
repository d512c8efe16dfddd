package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisFeed publishes events on a Redis pub/sub channel per entity so
// every server instance, and therefore every connected staff client,
// sees the same stream.
type RedisFeed struct {
	rdb    *redis.Client
	prefix string
	log    *logrus.Entry
}

// NewRedisFeed binds a feed to rdb.  Channels are named prefix:entity.
func NewRedisFeed(rdb *redis.Client, prefix string, log *logrus.Entry) *RedisFeed {
	if prefix == "" {
		prefix = "changes"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisFeed{rdb: rdb, prefix: prefix, log: log.WithField("module", "feed.redis")}
}

func (f *RedisFeed) channel(entity string) string { return f.prefix + ":" + entity }

// Publish encodes ev as JSON and sends it to the entity channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(ev.Entity), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Entity, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed, then delivers
// messages to h from a single goroutine.  Any receive error ends the
// subscription; reconnecting is the subscriber's decision.
func (f *RedisFeed) Subscribe(ctx context.Context, entity string, h Handler) (Subscription, error) {
	ps := f.rdb.Subscribe(ctx, f.channel(entity))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", entity, err)
	}
	sub := newSubscription(ps.Close)
	log := f.log.WithField("channel", f.channel(entity))

	go func() {
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				if sub.ended() {
					return
				}
				log.WithError(err).Warn("receive failed")
				sub.end(fmt.Errorf("%w: %v", ErrDisconnected, err))
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.WithError(err).Error("dropping malformed event")
				continue
			}
			if sub.ended() {
				return
			}
			h(ev)
		}
	}()
	return sub, nil
}
