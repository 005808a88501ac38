// Package cherr defines the error taxonomy shared by the chat core.
//
// Errors are classified into kinds so transport code can decide what to put
// on the wire without inspecting error strings: Unauthorized refuses the
// connection or frame, NotFound/BadRequest reject a frame but keep the
// connection open, Backpressure forces a disconnect, Internal is logged and
// reported generically.
package cherr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire-level handling.
type Kind int

const (
	// Internal is the zero value: unexpected failures, never detailed on the wire.
	Internal Kind = iota
	// Unauthorized means a bad, missing, or expired credential.
	Unauthorized
	// NotFound means the chat does not exist or the caller is not a member.
	NotFound
	// BadRequest means a malformed or unsupported frame.
	BadRequest
	// ProviderFailure means a single model invocation failed.
	ProviderFailure
	// Backpressure means a connection's outbound queue overflowed.
	Backpressure
)

// String returns the snake_case name used in logs.
func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case BadRequest:
		return "bad_request"
	case ProviderFailure:
		return "provider_failure"
	case Backpressure:
		return "backpressure"
	default:
		return "internal"
	}
}

// Error pairs a kind with an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err, walking the wrap chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}

// Public returns the message safe to send to a client. Internal errors are
// masked; everything else carries an operator-written message already.
func Public(err error) string {
	if KindOf(err) == Internal {
		return "internal error"
	}
	return err.Error()
}
