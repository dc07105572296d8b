package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindIllegalTransition
	KindValidation
	KindConcurrencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindIllegalTransition:
		return "ILLEGAL_TRANSITION"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindConcurrencyConflict:
		return "CONCURRENCY_CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Error is the error type returned by the executor and the facade.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by kind, so
// errors.Is(err, ErrForbidden) works for any forbidden error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrIllegalTransition   = &Error{Kind: KindIllegalTransition}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind carried by err, KindInternal otherwise.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}
