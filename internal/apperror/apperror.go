// Package apperror carries the error taxonomy shared by the alert and
// notification pipeline: every error that crosses a component boundary is
// tagged with a Kind so callers can decide between retry, fallback and reject.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindTransient
	KindValidation
	KindBreakerOpen
	KindProvider
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindBreakerOpen:
		return "breaker_open"
	case KindProvider:
		return "provider"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error with an optional cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// ErrBreakerOpen is returned when a circuit breaker rejects a call without
// attempting it.
var ErrBreakerOpen = &Error{Kind: KindBreakerOpen, Message: "circuit breaker is open"}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// GetKind returns the Kind of the outermost tagged error in the chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

func Validation(format string, args ...any) error {
	return Errorf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return Errorf(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return Errorf(KindConflict, format, args...)
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	switch GetKind(err) {
	case KindValidation, KindNotFound, KindConflict:
		return true
	}
	return false
}
