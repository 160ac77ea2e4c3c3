// Package upstream defines the boundary between the key-rotation core and the
// remote chat-completion service. The executor's branching is driven by the
// closed FailureKind enumeration; concrete transports live in subpackages.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies an upstream failure for the rotation state machine.
type FailureKind int

const (
	// FailureAuth means the remote rejected the key (401/403).
	FailureAuth FailureKind = iota
	// FailureRateLimit means the key hit a rate limit or quota (429/402).
	FailureRateLimit
	// FailureTransport covers network errors and malformed responses.
	FailureTransport
	// FailureTimeout means the per-call deadline elapsed.
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureRateLimit:
		return "rate_limit"
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the only error type transports surface to the executor.
type Error struct {
	Kind   FailureKind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s failure (status %d): %s", e.Kind, e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("upstream %s failure: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KeyFailure reports whether the failure is attributable to the key itself.
// Rate-limit failures are deliberately treated like auth failures: both
// exhaust the key for the process lifetime until an explicit pool reset.
func (e *Error) KeyFailure() bool {
	return e.Kind == FailureAuth || e.Kind == FailureRateLimit
}

// AsError unwraps err into an upstream *Error if possible.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Stream is a lazy sequence of response fragments from a streaming call.
// Recv returns io.EOF after the final fragment. A non-EOF error terminates
// the stream; Close releases the underlying connection.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}

// Transport is the remote call abstraction the core depends on but does not
// implement. Implementations must return either a plain error derived from
// ctx (cancellation) or an *Error from the closed taxonomy above.
type Transport interface {
	// Invoke performs a synchronous chat completion with the given key.
	Invoke(ctx context.Context, secret string, payload []byte) ([]byte, error)

	// InvokeStream performs a streaming chat completion with the given key.
	InvokeStream(ctx context.Context, secret string, payload []byte) (Stream, error)

	// Probe issues a minimal, low-cost liveness call with the given key.
	Probe(ctx context.Context, secret string) error
}
