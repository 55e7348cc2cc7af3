package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP boundary can map it to a status code.
type Kind string

const (
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindInvalidState       Kind = "INVALID_STATE"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindNotFound           Kind = "NOT_FOUND"
	KindDivisionByZero     Kind = "DIVISION_BY_ZERO"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindConflict           Kind = "CONFLICT"
	KindStorage            Kind = "STORAGE_ERROR"
)

// Error is the typed failure returned by the production services.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so callers can compare against the
// sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDivisionByZero     = &Error{Kind: KindDivisionByZero}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStorage            = &Error{Kind: KindStorage}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return New(KindPreconditionFailed, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func Storage(err error, format string, args ...interface{}) *Error {
	return Wrap(KindStorage, err, format, args...)
}

// KindOf returns the Kind carried by err, or KindStorage for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorage
}
