package dispatch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core can surface.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindUnknownTool    ErrorKind = "unknown_tool"
	KindMisconfigured  ErrorKind = "misconfigured"
	KindBackendFailure ErrorKind = "backend_failure"
	KindMalformedInput ErrorKind = "malformed_input"
)

// Error is a classified failure. Message is safe to show to callers; Err
// carries the upstream cause, if any.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the caller-facing description, including upstream detail when
// there is some.
func (e *Error) Detail() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func newError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// NotFound reports that no endpoint is registered under name.
func NotFound(op, name string) *Error {
	return newError(KindNotFound, op, fmt.Sprintf("Endpoint '%s' not found.", name), nil)
}

// Malformed reports a structural problem with caller input.
func Malformed(op string, err error) *Error {
	return newError(KindMalformedInput, op, "invalid input", err)
}

// KindOf classifies err. Anything that is not a *Error is a backend failure,
// so no error leaves a front end unclassified.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindBackendFailure
}

// AsError returns err as a *Error, wrapping unclassified errors as backend
// failures of op.
func AsError(op string, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return newError(KindBackendFailure, op, "backend failure", err)
}

// badInput is implemented by collaborator errors caused by the caller's input.
type badInput interface {
	BadInput() bool
}

func isBadInput(err error) bool {
	var bi badInput
	return errors.As(err, &bi) && bi.BadInput()
}
