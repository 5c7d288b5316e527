// Package common defines shared constants and sentinel errors used across
// the account service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrSessionMismatch = errors.New("session secret mismatch")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Error is a user-visible failure. Kind is one of the sentinels above and is
// what errors.Is matches on; Message is safe to return to clients; Err is the
// internal cause, kept for logs only.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// NewError builds an Error of the given kind with a client-facing message.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError is NewError with an internal cause attached.
func WrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation, Conflict, Unauthorized, NotFound and Internal are shorthands
// for the five error kinds surfaced by the workflows.
func Validation(message string) *Error { return NewError(ErrValidation, message) }

func Conflict(message string) *Error { return NewError(ErrConflict, message) }

func Unauthorized(message string) *Error { return NewError(ErrorUnauthorized, message) }

func NotFound(message string) *Error { return NewError(ErrorNotFound, message) }

func Internal(message string, cause error) *Error {
	return WrapError(ErrorInternal, message, cause)
}

// Kind reports which of the sentinel kinds err belongs to. Anything that is
// not one of them is treated as internal.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind != nil {
		return e.Kind
	}
	for _, k := range []error{ErrValidation, ErrConflict, ErrorUnauthorized, ErrorNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrorInternal
}

// Message returns the client-facing text for err. Internal causes are never
// echoed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch Kind(err) {
	case ErrValidation:
		return "invalid request"
	case ErrConflict:
		return "account already exists"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorNotFound:
		return "not found"
	}
	return "something went wrong"
}
