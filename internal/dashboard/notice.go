package dashboard

import (
	"fmt"
	"time"

	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// NoticeKind classifies operator notifications.
type NoticeKind string

const (
	NoticeNewReservation NoticeKind = "new_reservation"
	NoticeError          NoticeKind = "error"
	NoticeAuthRequired   NoticeKind = "auth_required"
)

// Notice is a one-shot message for the operator.  Notices are not
// stored anywhere.
type Notice struct {
	Kind          NoticeKind `json:"kind"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	ReservationID string     `json:"reservation_id,omitempty"`
	At            time.Time  `json:"at"`
}

// isNewReservation reports whether ev announces a freshly booked table.
func isNewReservation(ev feed.Event) bool {
	return ev.Type == feed.Created && ev.Record.Status == model.StatusPending
}

func newReservationNotice(r model.Reservation, at time.Time) Notice {
	guests := "guests"
	if r.PartySize == 1 {
		guests = "guest"
	}
	return Notice{
		Kind:          NoticeNewReservation,
		Title:         "New reservation",
		Message:       fmt.Sprintf("New reservation: %s - %d %s", r.GuestName(), r.PartySize, guests),
		ReservationID: r.ID,
		At:            at,
	}
}

func errorNotice(title string, err error, id string, at time.Time) Notice {
	return Notice{Kind: NoticeError, Title: title, Message: err.Error(), ReservationID: id, At: at}
}
