package constants

import "time"

// Retry policy for the request executor.
const (
	// DefaultMaxRetries bounds rotation and same-key retries combined.
	DefaultMaxRetries = 3

	// Probe defaults
	DefaultProbeConcurrency = 5
	DefaultProbeTimeout     = 10 * time.Second
	DefaultProbeMaxTokens   = 1
)
