package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure; the HTTP layer maps it to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindForbidden
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrBadRequest = &Error{Kind: KindBadRequest, Msg: "bad request"}
	ErrForbidden  = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrConflict   = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrNotFound   = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInternal   = &Error{Kind: KindInternal, Msg: "internal error"}
)

// Error carries a kind and a message safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps a transport failure. Msg stays generic; the cause is kept for logs.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ErrInternal.Msg
}
