package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two locally-detected terminal conditions.
var (
	// ErrAllKeysExhausted is returned when the pool has no eligible key left,
	// either before any call or after rotation spent every key.
	ErrAllKeysExhausted = errors.New("all api keys exhausted")

	// ErrInvalidKeyFormat is returned when a selected key is malformed
	// (e.g. blank). No transport call is made and no retry budget is spent.
	ErrInvalidKeyFormat = errors.New("invalid api key format")
)

// TransportFailure wraps the last upstream failure once the retry budget is
// spent on errors that are not attributable to a key.
type TransportFailure struct {
	Attempts int
	Err      error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("upstream request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// IsAllKeysExhausted reports whether err is the pool-exhaustion condition.
func IsAllKeysExhausted(err error) bool { return errors.Is(err, ErrAllKeysExhausted) }

// IsInvalidKeyFormat reports whether err is the malformed-key condition.
func IsInvalidKeyFormat(err error) bool { return errors.Is(err, ErrInvalidKeyFormat) }
