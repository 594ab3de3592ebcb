// Package apperr classifies service errors so transport code can map them
// onto HTTP statuses without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error category.
type Kind int

const (
	// Validation covers missing/invalid fields and bad enum values.
	Validation Kind = iota
	// NotFound covers unresolvable officer/site/shift/timesheet references.
	NotFound
	// Conflict covers double-booking and equivalent uniqueness violations.
	Conflict
	// InvalidState covers clock state machine violations.
	InvalidState
	// InvalidTransition covers shift status machine violations.
	InvalidTransition
	// Storage covers transient persistence failures. Never auto-retried here.
	Storage
)

// Error carries a kind alongside the message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind; unclassified errors count as Storage.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Storage
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// HTTPStatus maps a classified error to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Storage:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
