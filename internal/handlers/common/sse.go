package common

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrepareSSE sets the response headers for a server-sent event stream.
func PrepareSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}

// SSEWriteData writes one data event and flushes.
func SSEWriteData(c *gin.Context, data []byte) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// SSEWriteDone terminates the stream with the OpenAI-style sentinel.
func SSEWriteDone(c *gin.Context) {
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// SSEWriteError emits a final error event before the stream closes. Used when
// a failure happens after headers have been written and a plain JSON error
// response is no longer possible.
func SSEWriteError(c *gin.Context, err error) {
	apiErr := MapError(err)
	payload, merr := apiErr.ToJSON()
	if merr != nil {
		payload = []byte(`{"error":{"message":"stream error","type":"server_error"}}`)
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}
