package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindTransport is a network or provider failure. Never retried internally.
	KindTransport ErrorKind = "transport"
	// KindProtocol is malformed wire data or a provider contract violation.
	KindProtocol ErrorKind = "protocol"
	// KindTool is a tool failure that escaped the tool executor.
	KindTool ErrorKind = "tool"
	// KindSink is a write failure on the byte sink.
	KindSink ErrorKind = "sink"
	// KindCancelled marks cancellation. It is not a failure.
	KindCancelled ErrorKind = "cancelled"
)

// Error is the typed error surfaced by pipeline components.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}

	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewTransportError wraps a provider or network failure.
func NewTransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// NewProtocolError reports malformed data or a contract violation.
func NewProtocolError(op, msg string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: msg, Err: err}
}

// NewSinkError wraps a sink write or close failure.
func NewSinkError(op string, err error) *Error {
	return &Error{Kind: KindSink, Op: op, Err: err}
}

// NewCancelledError wraps a cancellation cause.
func NewCancelledError(op string, err error) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}

// IsCancellation reports whether err stems from cancellation rather than failure.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return KindOf(err) == KindCancelled
}

// Classify wraps err as a transport error unless it is already typed or a
// cancellation.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if IsCancellation(err) {
		return NewCancelledError(op, err)
	}

	return NewTransportError(op, err)
}
