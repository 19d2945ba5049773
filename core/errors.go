package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes terminal failures in outcomes and logs.
type ErrorKind string

const (
	// KindMalformedInput marks requests missing required fields; never retried.
	KindMalformedInput ErrorKind = "MalformedInput"
	// KindInvalidScope marks a malformed role ARN; fatal, never retried.
	KindInvalidScope ErrorKind = "InvalidScopeError"
	// KindToolFailure marks a tool call that returned failure; non-fatal in-loop.
	KindToolFailure ErrorKind = "ToolFailure"
	// KindUnknownServer marks a call to an unregistered tool server.
	KindUnknownServer ErrorKind = "UnknownServerError"
	// KindIterationLimit marks loop termination without a final answer.
	KindIterationLimit ErrorKind = "IterationLimitExceeded"
	// KindTimeout marks the per-request wall-clock budget being hit.
	KindTimeout ErrorKind = "TimeoutExceeded"
	// KindCancelled marks pipeline-level cancellation mid-request.
	KindCancelled ErrorKind = "Cancelled"
	// KindDeliveryFailure marks an undeliverable callback after retries.
	KindDeliveryFailure ErrorKind = "DeliveryFailure"
	// KindTransport marks transient network failure.
	KindTransport ErrorKind = "TransportError"
	// KindInternal marks unexpected worker errors (panics, broken invariants).
	KindInternal ErrorKind = "InternalError"
)

// ErrMalformedInput signals a queue message missing required fields. Such
// messages are acknowledged without dispatch; retrying cannot fix them.
var ErrMalformedInput = errors.New("malformed input")

// InvalidScopeError reports a syntactically invalid role ARN on the request.
// It is fatal for the request: no retry helps a malformed ARN.
type InvalidScopeError struct {
	RoleARN string
	Reason  string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope: role_arn %q: %s", e.RoleARN, e.Reason)
}

// UnknownServerError reports a tool call referencing an unregistered server.
// It is fatal for that call but recoverable at the loop level: the reasoning
// step may choose a different tool.
type UnknownServerError struct {
	Server string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("unknown tool server: %q", e.Server)
}

// UnrecoverableError marks conditions that must short-circuit the
// orchestration loop without consuming further iteration budget
// (authentication failure, malformed configuration).
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Unrecoverable wraps err so IsUnrecoverable reports true for it.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &UnrecoverableError{Err: err}
}

// IsUnrecoverable reports whether err signals a condition the loop must not
// retry within its budget.
func IsUnrecoverable(err error) bool {
	var ue *UnrecoverableError
	return errors.As(err, &ue)
}
