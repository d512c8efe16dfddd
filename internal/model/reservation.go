package model

import (
	"fmt"
	"time"
)

// Layouts used for the calendar date and the service slot of a
// reservation.  Both sort lexically in chronological order, which the
// projection and the store ordering rely on.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSeated    Status = "seated"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// StatusAny is accepted by filters only; it never appears on a record.
const StatusAny Status = "all"

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusSeated, StatusCompleted, StatusCancelled}

var statusLabels = map[Status]string{
	StatusPending:   "Pending",
	StatusConfirmed: "Confirmed",
	StatusSeated:    "Seated",
	StatusCompleted: "Completed",
	StatusCancelled: "Cancelled",
}

// Valid reports whether s is one of the five record statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable name shown on the staff panel.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseStatus converts a raw string into a record status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Reservation is one table booking.  ID and CreatedAt are assigned by
// the store and never change afterwards.
//
// Fields:
//  ID        – opaque identifier (UUID string).
//  FirstName – guest first name.
//  LastName  – guest last name.
//  Phone     – contact phone, digits only.
//  Date      – service day, YYYY-MM-DD.
//  Time      – service slot, HH:MM.
//  PartySize – number of guests (1..12).
//  Status    – lifecycle state.
//  CreatedAt – creation timestamp (UTC).
//  UpdatedAt – last write timestamp (UTC).
type Reservation struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	PartySize int       `json:"party_size"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuestName joins first and last name.
func (r Reservation) GuestName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// Query is the predicate pushed down to the store.  Empty bounds and an
// empty (or StatusAny) status match everything.  From and To are
// inclusive YYYY-MM-DD dates.
type Query struct {
	From   string
	To     string
	Status Status
}

// Patch is a single-record update.  When ExpectStatus is set the write
// only succeeds if the stored status still equals it.
type Patch struct {
	Status       Status
	ExpectStatus Status
}
