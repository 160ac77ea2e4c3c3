package keypool

import "time"

// maskThreshold is the secret length above which partial reveal is allowed.
const maskThreshold = 12

// maskPlaceholder fully hides secrets at or below the threshold length.
const maskPlaceholder = "***"

// KeyState holds one API key and its mutable health state. All mutable
// fields are guarded by the owning Pool's mutex, never by a per-key lock.
type KeyState struct {
	Secret    string
	Exhausted bool

	// Bookkeeping for the management surface. Never affects eligibility.
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64
	LastSuccess   time.Time
	LastFailure   time.Time
	LastError     string
}

// Mask renders the secret safe for display: first 6 and last 6 characters
// joined by an ellipsis for long secrets, a fixed placeholder otherwise.
func (k *KeyState) Mask() string {
	return MaskSecret(k.Secret)
}

// MaskSecret masks an arbitrary secret using the same rules as KeyState.Mask.
func MaskSecret(secret string) string {
	if len(secret) <= maskThreshold {
		return maskPlaceholder
	}
	return secret[:6] + "..." + secret[len(secret)-6:]
}

// KeyInfo is an immutable snapshot of one key's state for display.
type KeyInfo struct {
	Masked        string    `json:"key"`
	Exhausted     bool      `json:"exhausted"`
	TotalRequests int64     `json:"total_requests"`
	SuccessCount  int64     `json:"success_count"`
	FailureCount  int64     `json:"failure_count"`
	LastSuccess   time.Time `json:"last_success,omitempty"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}
