// Package openrouter implements the upstream transport boundary against the
// OpenRouter chat-completions API.
package openrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orfree-go/internal/constants"
	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/monitoring/tracing"
	"orfree-go/internal/upstream"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Options configure the OpenRouter client.
type Options struct {
	BaseURL string
	// Model forces the model field on outgoing payloads when set.
	Model string
	// ProbeModel is the model used for minimal liveness probes.
	// Defaults to Model when empty.
	ProbeModel string
	ProxyURL   string
	// Referer and Title populate OpenRouter's optional ranking headers.
	Referer string
	Title   string
}

// Client talks to the OpenRouter chat-completions API. It implements
// upstream.Transport.
type Client struct {
	cli        *http.Client
	baseURL    string
	model      string
	probeModel string
	referer    string
	title      string
}

var _ upstream.Transport = (*Client)(nil)

// New constructs a client with a tuned HTTP transport. The http.Client itself
// carries no timeout; deadlines come from the per-call context.
func New(opts Options) *Client {
	tr := &http.Transport{
		Proxy: proxyFunc(opts.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   constants.DefaultDialTimeout,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.MaxIdleConns,
		MaxIdleConnsPerHost:   constants.MaxIdleConnsPerHost,
		IdleConnTimeout:       constants.IdleConnTimeout,
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	probeModel := opts.ProbeModel
	if probeModel == "" {
		probeModel = opts.Model
	}
	return &Client{
		cli:        &http.Client{Transport: tr, Timeout: 0},
		baseURL:    baseURL,
		model:      opts.Model,
		probeModel: probeModel,
		referer:    opts.Referer,
		title:      opts.Title,
	}
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

// Invoke performs a synchronous chat completion with the given key.
func (c *Client) Invoke(ctx context.Context, secret string, payload []byte) ([]byte, error) {
	body := c.shapePayload(payload, false)

	spanCtx, span := tracing.StartSpan(ctx, "upstream/openrouter", "OpenRouter.ChatCompletion",
		trace.WithAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("upstream.mode", "complete"),
		))
	defer span.End()

	start := time.Now()
	resp, err := c.post(spanCtx, secret, body, false)
	monitoring.UpstreamRequestDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues("complete", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classifyNetworkError(ctx, err)
	}
	defer resp.Body.Close()

	monitoring.UpstreamRequestsTotal.WithLabelValues("complete", statusClass(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		failure := classifyStatus(resp.StatusCode, respBody)
		annotateRetryAfter(failure, resp.Header.Get("Retry-After"))
		span.SetStatus(codes.Error, failure.Error())
		return nil, failure
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, classifyNetworkError(ctx, err)
	}
	span.SetStatus(codes.Ok, "")
	return respBody, nil
}

// Probe issues a minimal, low-cost completion to check key liveness.
func (c *Client) Probe(ctx context.Context, secret string) error {
	payload, _ := sjson.SetBytes([]byte(`{"messages":[{"role":"user","content":"Hi"}]}`),
		"max_tokens", constants.DefaultProbeMaxTokens)
	if c.probeModel != "" {
		payload, _ = sjson.SetBytes(payload, "model", c.probeModel)
	}

	_, err := c.Invoke(ctx, secret, payload)
	return err
}

// shapePayload forces the configured model when the payload carries none and
// pins the stream flag to the requested mode.
func (c *Client) shapePayload(payload []byte, stream bool) []byte {
	body := payload
	if c.model != "" && gjson.GetBytes(body, "model").String() == "" {
		body, _ = sjson.SetBytes(body, "model", c.model)
	}
	if stream {
		body, _ = sjson.SetBytes(body, "stream", true)
	} else if gjson.GetBytes(body, "stream").Exists() {
		body, _ = sjson.DeleteBytes(body, "stream")
	}
	return body
}

func (c *Client) post(ctx context.Context, secret string, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	return c.cli.Do(req)
}

func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// classifyStatus maps an upstream HTTP status to the closed failure taxonomy.
// 402 is included with rate limits: OpenRouter signals spent free quota with
// Payment Required.
func classifyStatus(status int, body []byte) *upstream.Error {
	msg := apperrors.ExtractUpstreamMessage(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &upstream.Error{Kind: upstream.FailureAuth, Status: status, Msg: msg}
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return &upstream.Error{Kind: upstream.FailureRateLimit, Status: status, Msg: msg}
	default:
		return &upstream.Error{Kind: upstream.FailureTransport, Status: status, Msg: msg}
	}
}

// annotateRetryAfter records the server's Retry-After hint on rate-limit
// failures. Exhaustion is process-lifetime regardless, so the hint is
// diagnostic only.
func annotateRetryAfter(failure *upstream.Error, header string) {
	if failure.Kind != upstream.FailureRateLimit || header == "" {
		return
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		failure.Msg = fmt.Sprintf("%s (retry after %ds)", failure.Msg, secs)
	}
}

// classifyNetworkError maps a network-level error to the taxonomy. Caller
// cancellation passes through untouched so the executor can recognize it.
func classifyNetworkError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if isTimeout(err) {
		return &upstream.Error{Kind: upstream.FailureTimeout, Msg: "request timed out", Err: err}
	}
	return &upstream.Error{Kind: upstream.FailureTransport, Msg: "network error", Err: err}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
