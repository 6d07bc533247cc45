package store

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an operation on a message or thread that no
// longer exists. Call sites treat it as a successful no-op.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized marks an attempt to delete another user's message.
// Surfaced to the UI as a no-op, never as a crash.
var ErrUnauthorized = errors.New("unauthorized")

// TransportError wraps a network or auth failure talking to the
// persisted backend. Always recoverable: the polling interval is the
// retry mechanism.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
