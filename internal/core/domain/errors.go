package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindUnavailable     ErrorKind = "unavailable"
	KindConflict        ErrorKind = "conflict"
	KindInternal        ErrorKind = "internal"
)

// Error is a failure the router reports back to the originating connection.
// Reason is short and safe to show to clients.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any *Error with the same kind, so callers can test against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound, Reason: "not found"}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Reason: "unauthorized"}
	ErrForbidden       = &Error{Kind: KindForbidden, Reason: "forbidden"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Reason: "invalid argument"}
	ErrUnavailable     = &Error{Kind: KindUnavailable, Reason: "unavailable"}
	ErrConflict        = &Error{Kind: KindConflict, Reason: "conflict"}
	ErrInternal        = &Error{Kind: KindInternal, Reason: "internal error"}
)

func NotFound(reason string) error        { return &Error{Kind: KindNotFound, Reason: reason} }
func Unauthorized(reason string) error    { return &Error{Kind: KindUnauthorized, Reason: reason} }
func Forbidden(reason string) error       { return &Error{Kind: KindForbidden, Reason: reason} }
func InvalidArgument(reason string) error { return &Error{Kind: KindInvalidArgument, Reason: reason} }
func Unavailable(reason string) error     { return &Error{Kind: KindUnavailable, Reason: reason} }
func Conflict(reason string) error        { return &Error{Kind: KindConflict, Reason: reason} }

// KindOf reports the kind carried by err. Anything that is not a domain
// error is an infrastructure failure and maps to KindInternal.
func KindOf(err error) ErrorKind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindInternal
}

// Public strips infrastructure detail so err can be sent to a client.
func Public(err error) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}
	return ErrInternal
}
