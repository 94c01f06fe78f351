package plume

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned from operations on a closed Realtime instance.
	ErrClosed = errors.New("realtime client closed")

	// ErrNoToken is returned when an authenticated call is made without a
	// session token.
	ErrNoToken = errors.New("no session token")
)

// TransportError wraps a socket-level failure. It is handled inside the
// connection manager (retried via backoff and the outbound queue) and only
// reaches callers of direct, non-queued operations.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MutationTimeoutError is delivered to the caller that initiated an
// optimistic mutation when no confirming server event arrived in time. The
// speculative state has already been rolled back when this is delivered.
type MutationTimeoutError struct {
	Kind     MutationKind
	TargetID string
	After    time.Duration
}

func (e *MutationTimeoutError) Error() string {
	return fmt.Sprintf("optimistic %s on %s unconfirmed after %s, rolled back", e.Kind, e.TargetID, e.After)
}
