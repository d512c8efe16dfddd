// Package projection derives the filtered, ordered view a staff client
// shows over a reservation snapshot.  Every function takes the
// reference time explicitly so results are deterministic.
package projection

import (
	"cmp"
	"slices"
	"time"

	"github.com/iliyamo/restaurant-reservations/internal/model"
	"github.com/iliyamo/restaurant-reservations/internal/status"
)

// weekSpan is how many days past today "this-week" reaches, inclusive.
const weekSpan = 7

// Bounds returns the inclusive date range covered by scope, relative to
// now (already in the restaurant's zone).  bounded is false for
// ScopeAll and unknown scopes.
func Bounds(scope model.DateScope, now time.Time) (from, to string, bounded bool) {
	today := now.Format(model.DateLayout)
	switch scope {
	case model.ScopeToday:
		return today, today, true
	case model.ScopeTomorrow:
		d := now.AddDate(0, 0, 1).Format(model.DateLayout)
		return d, d, true
	case model.ScopeThisWeek:
		return today, now.AddDate(0, 0, weekSpan).Format(model.DateLayout), true
	}
	return "", "", false
}

// Query translates a filter into the store predicate.
func Query(f model.FilterSpec, now time.Time) model.Query {
	q := model.Query{}
	if from, to, ok := Bounds(f.Scope, now); ok {
		q.From, q.To = from, to
	}
	if !f.AnyStatus() {
		q.Status = f.Status
	}
	return q
}

// Matches reports whether r passes both the date scope and the status
// predicate of f.
func Matches(r model.Reservation, f model.FilterSpec, now time.Time) bool {
	if from, to, ok := Bounds(f.Scope, now); ok {
		if r.Date < from || r.Date > to {
			return false
		}
	}
	return f.AnyStatus() || r.Status == f.Status
}

// Derive filters snapshot by f and sorts the result by (date, time)
// ascending.  The sort is stable so equal slots keep snapshot order.
// snapshot is not modified; the result is never nil.
func Derive(snapshot []model.Reservation, f model.FilterSpec, now time.Time) []model.Reservation {
	out := make([]model.Reservation, 0, len(snapshot))
	for _, r := range snapshot {
		if Matches(r, f, now) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Reservation) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Time, b.Time)
	})
	return out
}

// ActiveCount counts items that can still change status.
func ActiveCount(items []model.Reservation) int {
	n := 0
	for _, r := range items {
		if !status.IsTerminal(r.Status) {
			n++
		}
	}
	return n
}
