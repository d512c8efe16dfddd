package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by the store, the dashboard controller and the
// HTTP handlers.  Callers match with errors.Is.
var (
	// ErrValidation marks malformed creation input.  Not retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("reservation not found")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("reservation changed concurrently")
	// ErrQuery wraps transient read failures from the store.
	ErrQuery = errors.New("query failed")
	// ErrWrite wraps transient write failures from the store.
	ErrWrite = errors.New("write failed")
	// ErrAuthRequired means there is no usable session.
	ErrAuthRequired = errors.New("authentication required")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports the status found when a compare-and-swap write
// did not match.
type ConflictError struct {
	ID       string
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation %s is %s, expected %s", e.ID, e.Actual, e.Expected)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
