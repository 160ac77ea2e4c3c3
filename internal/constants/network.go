package constants

import "time"

// HTTP client connection pool tuning for the upstream transport.
const (
	MaxIdleConns        = 256
	MaxIdleConnsPerHost = 64
	IdleConnTimeout     = 90 * time.Second

	DefaultKeepAlive = 30 * time.Second
)

// HTTP timeouts applied at the transport layer.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 60 * time.Second
	DefaultExpectContinueTimeout = 2 * time.Second
)

// SSE scanner buffer sizes for streaming responses.
const (
	SSEScannerInitialBufferSize = 64 * 1024
	SSEScannerMaxBufferSize     = 4 * 1024 * 1024
)
