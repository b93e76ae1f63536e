package filter

import (
	"fmt"
	"strings"
)

// ValidationError aggregates every shape violation found in one pass over
// the input, so callers get the complete picture in a single round-trip.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filter input: %s", strings.Join(e.Messages, "; "))
}

// add records one violation.
func (e *ValidationError) add(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// or returns the aggregated error, or nil when nothing was recorded.
func (e *ValidationError) or() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}

// UnsupportedOperatorError reports an operator alias no operator claims.
// Known carries the complete valid-alias list to aid debugging.
type UnsupportedOperatorError struct {
	Alias string
	Known []string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q (known: %s)", e.Alias, strings.Join(e.Known, ", "))
}

// UnauthorizedFieldsError names every field rejected by the allow-list in
// one batch. Raised only by the strict JSON entry points; the pre-validated
// query-object path drops such conditions instead.
type UnauthorizedFieldsError struct {
	Fields []string
}

func (e *UnauthorizedFieldsError) Error() string {
	return fmt.Sprintf("fields not allowed for filtering: %s", strings.Join(e.Fields, ", "))
}
