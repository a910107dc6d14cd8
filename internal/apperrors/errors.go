// Package apperrors defines the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransport  = errors.New("transport error")
)

// ErrNoPendingRecipients is returned when a campaign has nothing left to send.
var ErrNoPendingRecipients = &Error{Kind: ErrValidation, Message: "campaign has no pending recipients"}

// Error carries a kind and a human readable message
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input
func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

// NotFound reports a missing entity
func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

// Conflict reports a uniqueness or reference violation
func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

// Transport wraps a per-recipient delivery failure
func Transport(err error, format string, args ...interface{}) error {
	return &Error{Kind: ErrTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsPermanent reports whether retrying the failed operation unchanged can
// never succeed
func IsPermanent(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err)
}
