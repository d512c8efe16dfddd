// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// TransitionQueue is the default queue for status changes.
const TransitionQueue = "reservation.transitioned"

// TransitionEvent is published after a reservation status change has
// been stored.  It carries enough for a notification service (SMS,
// email) to act without reading the store.
type TransitionEvent struct {
	ReservationID string       `json:"reservation_id"`
	GuestName     string       `json:"guest_name"`
	Phone         string       `json:"phone"`
	Date          string       `json:"date"`
	Time          string       `json:"time"`
	PartySize     int          `json:"party_size"`
	From          model.Status `json:"from"`
	To            model.Status `json:"to"`
	At            string       `json:"at"`
}

// NewTransitionEvent builds the payload for r having moved from -> r.Status.
func NewTransitionEvent(r model.Reservation, from model.Status, at time.Time) TransitionEvent {
	return TransitionEvent{
		ReservationID: r.ID,
		GuestName:     r.GuestName(),
		Phone:         r.Phone,
		Date:          r.Date,
		Time:          r.Time,
		PartySize:     r.PartySize,
		From:          from,
		To:            r.Status,
		At:            at.UTC().Format(time.RFC3339),
	}
}
