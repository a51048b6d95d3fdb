// Package apperror classifies errors that cross the command surface so
// handlers can pick between an inline explanation and a generic failure.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the category of an application error
type Kind string

const (
	Validation  Kind = "VALIDATION"
	NotFound    Kind = "NOT_FOUND"
	Forbidden   Kind = "FORBIDDEN"
	Unavailable Kind = "UNAVAILABLE"
	Internal    Kind = "INTERNAL"
)

// Error is the application error type
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to err. A nil err stays nil.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Invalid is shorthand for a validation error
func Invalid(message string) error { return New(Validation, message) }

// KindOf returns the kind of the outermost application error in err's chain,
// or Internal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err carries an application error of the given kind
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Message returns the user-facing message of err: the application message when
// present, otherwise fallback.
func Message(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
