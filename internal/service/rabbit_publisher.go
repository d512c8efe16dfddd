package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/restaurant-reservations/internal/queue"
)

// RabbitPublisher sends transition events to a durable RabbitMQ queue.
// It dials per message; transitions are human paced so a pooled
// connection is not worth its reconnect logic.
type RabbitPublisher struct {
	URL         string
	Queue       string
	DialTimeout time.Duration
}

// NewRabbitPublisher returns a publisher for queueName on url.
func NewRabbitPublisher(url, queueName string) *RabbitPublisher {
	if queueName == "" {
		queueName = queue.TransitionQueue
	}
	return &RabbitPublisher{URL: url, Queue: queueName, DialTimeout: 3 * time.Second}
}

// PublishTransition marshals ev and publishes it as a persistent message.
func (p *RabbitPublisher) PublishTransition(ctx context.Context, ev queue.TransitionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.ReservationID + ":" + string(ev.To),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
