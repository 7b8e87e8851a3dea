// Package errs defines the error taxonomy shared by the race, settlement,
// and minigame services. Every error carries a machine-checkable Kind and a
// human-readable message.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a service error.
type Kind string

const (
	InvalidWager       Kind = "invalid_wager"
	InsufficientPoints Kind = "insufficient_points"
	NotFound           Kind = "not_found"
	Forbidden          Kind = "forbidden"
	TooEarly           Kind = "too_early"
	PolicyViolation    Kind = "policy_violation"
	Unauthenticated    Kind = "unauthenticated"
	// StorageFailure is retryable by the client.
	StorageFailure Kind = "storage_failure"
)

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. This lets callers
// match with errors.Is(err, errs.New(errs.NotFound, "")) or the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidWager       = &Error{Kind: InvalidWager}
	ErrInsufficientPoints = &Error{Kind: InsufficientPoints}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrForbidden          = &Error{Kind: Forbidden}
	ErrTooEarly           = &Error{Kind: TooEarly}
	ErrPolicyViolation    = &Error{Kind: PolicyViolation}
	ErrUnauthenticated    = &Error{Kind: Unauthenticated}
	ErrStorageFailure     = &Error{Kind: StorageFailure}
)

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
//
// Postcondition: errors.Is(result, err) holds.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
