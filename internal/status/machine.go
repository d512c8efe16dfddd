// Package status holds the reservation lifecycle rules.  It is pure:
// no I/O, no clocks, no knowledge of who asks for a transition.
package status

import (
	"errors"
	"fmt"
	"slices"

	"github.com/iliyamo/restaurant-reservations/internal/model"
)

// ErrInvalidTransition is matched by every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError names the rejected edge.
type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move reservation from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// transitions is the allowed-next table.  completed and cancelled are
// terminal; statuses missing from the table have no edges either.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusSeated, model.StatusCancelled},
	model.StatusSeated:    {model.StatusCompleted},
	model.StatusCompleted: {},
	model.StatusCancelled: {},
}

// CanTransition reports whether current -> next is an edge of the table.
func CanTransition(current, next model.Status) bool {
	return slices.Contains(transitions[current], next)
}

// Allowed returns the statuses reachable in one step from current.  The
// slice is a copy.
func Allowed(current model.Status) []model.Status {
	return slices.Clone(transitions[current])
}

// IsTerminal reports whether s is a known status with no outbound edges.
func IsTerminal(s model.Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Apply returns a copy of r moved to next.  r itself is never modified;
// on a rejected edge the zero Reservation and an InvalidTransitionError
// are returned.
func Apply(r model.Reservation, next model.Status) (model.Reservation, error) {
	if !CanTransition(r.Status, next) {
		return model.Reservation{}, &InvalidTransitionError{From: r.Status, To: next}
	}
	r.Status = next
	return r, nil
}
