package model

import "fmt"

// DateScope selects which service days a staff view covers.
type DateScope string

const (
	ScopeToday    DateScope = "today"
	ScopeTomorrow DateScope = "tomorrow"
	ScopeThisWeek DateScope = "this-week"
	ScopeAll      DateScope = "all"
)

// Scopes lists the accepted date scopes.
var Scopes = []DateScope{ScopeToday, ScopeTomorrow, ScopeThisWeek, ScopeAll}

// Valid reports whether d is a known scope.
func (d DateScope) Valid() bool {
	switch d {
	case ScopeToday, ScopeTomorrow, ScopeThisWeek, ScopeAll:
		return true
	}
	return false
}

// FilterSpec is the client-local selection used to derive a view.  It
// is never persisted.
type FilterSpec struct {
	Scope  DateScope `json:"scope"`
	Status Status    `json:"status"`
}

// DefaultFilter is what a freshly opened staff panel shows.
func DefaultFilter() FilterSpec {
	return FilterSpec{Scope: ScopeToday, Status: StatusAny}
}

// AnyStatus reports whether the filter accepts every status.
func (f FilterSpec) AnyStatus() bool {
	return f.Status == "" || f.Status == StatusAny
}

// ParseFilter builds a FilterSpec from raw query values.  Empty values
// fall back to the defaults.
func ParseFilter(scope, status string) (FilterSpec, error) {
	f := DefaultFilter()
	if scope != "" {
		f.Scope = DateScope(scope)
		if !f.Scope.Valid() {
			return FilterSpec{}, fmt.Errorf("unknown date scope %q", scope)
		}
	}
	if status != "" && Status(status) != StatusAny {
		s, err := ParseStatus(status)
		if err != nil {
			return FilterSpec{}, err
		}
		f.Status = s
	}
	return f, nil
}
