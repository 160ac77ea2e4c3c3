package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orfree-go/internal/constants"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/monitoring/tracing"
	"orfree-go/internal/upstream"
)

// InvokeStream performs a streaming chat completion. The returned stream
// yields raw SSE data payloads; [DONE] terminates it with io.EOF.
func (c *Client) InvokeStream(ctx context.Context, secret string, payload []byte) (upstream.Stream, error) {
	body := c.shapePayload(payload, true)

	spanCtx, span := tracing.StartSpan(ctx, "upstream/openrouter", "OpenRouter.ChatCompletionStream",
		trace.WithAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("upstream.mode", "stream"),
		))

	start := time.Now()
	resp, err := c.post(spanCtx, secret, body, true)
	monitoring.UpstreamRequestDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues("stream", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, classifyNetworkError(ctx, err)
	}

	monitoring.UpstreamRequestsTotal.WithLabelValues("stream", statusClass(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		failure := classifyStatus(resp.StatusCode, respBody)
		annotateRetryAfter(failure, resp.Header.Get("Retry-After"))
		span.SetStatus(codes.Error, failure.Error())
		span.End()
		return nil, failure
	}
	span.SetStatus(codes.Ok, "")

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, constants.SSEScannerInitialBufferSize)
	scanner.Buffer(buf, constants.SSEScannerMaxBufferSize)

	return &sseStream{ctx: ctx, body: resp.Body, scanner: scanner, span: span}, nil
}

// sseStream iterates SSE data lines from the upstream response body.
type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	span    trace.Span
	done    bool
}

var dataPrefix = []byte("data: ")

func (s *sseStream) Recv() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			// Comments, event names and blank keep-alive lines are skipped.
			continue
		}
		data := bytes.TrimSpace(line[len(dataPrefix):])
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return nil, io.EOF
		}
		return append([]byte(nil), data...), nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		if s.span != nil {
			s.span.RecordError(err)
		}
		return nil, classifyNetworkError(s.ctx, err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	if s.span != nil {
		s.span.End()
		s.span = nil
	}
	return s.body.Close()
}
