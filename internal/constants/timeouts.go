package constants

import "time"

const (
	// UpstreamRequestTimeout enforces max duration for non-stream completion calls.
	UpstreamRequestTimeout = 120 * time.Second
	// UpstreamStreamTimeout enforces max duration for streaming completion calls.
	UpstreamStreamTimeout = 180 * time.Second
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
	// ConfigWatchDebounce coalesces rapid config file change events.
	ConfigWatchDebounce = 300 * time.Millisecond
)
