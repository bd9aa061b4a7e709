// Package apperr defines the error taxonomy shared by the daemon, its
// transport and the external service adapters.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	KindTransient Kind = "transient"
	KindAuth      Kind = "auth"
	KindNotFound  Kind = "not_found"
	KindDatabase  Kind = "database"
	KindTransport Kind = "transport"
	KindInvalid   Kind = "invalid"
	KindInternal  Kind = "internal"
)

// Error is a classified error. Op names the failing operation, Msg is a
// message fit for the end user, Err is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		if e.Op == "" {
			return e.Msg
		}
		return e.Op + ": " + e.Msg
	case e.Err != nil:
		if e.Op == "" {
			return e.Err.Error()
		}
		return e.Op + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a user-facing message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound is shorthand for a not-found error with a user-facing message.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Invalid is shorthand for a bad-argument error with a user-facing message.
func Invalid(op, format string, args ...any) error {
	return &Error{Kind: KindInvalid, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Context cancellation and deadlines are transient; anything else
// unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing text for err: the innermost Msg when one
// was set, otherwise a generic line per kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok && ae.Msg != "" {
			msg = ae.Msg
		}
	}
	if msg != "" {
		return msg
	}
	switch KindOf(err) {
	case KindTransient:
		return "The music service did not respond, try again in a moment."
	case KindAuth:
		return "The music service session is no longer valid, re-authenticate and try again."
	case KindNotFound:
		return "Nothing matched."
	case KindDatabase:
		return "The local library is unavailable."
	case KindTransport:
		return "The daemon is not reachable."
	}
	return err.Error()
}
