package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/stats"
	"orfree-go/internal/upstream"
)

type fakeExec struct {
	completeResp []byte
	completeErr  error
	streamFrags  [][]byte
	streamErr    error
	gotPayload   []byte
}

func (f *fakeExec) Complete(_ context.Context, payload []byte) ([]byte, error) {
	f.gotPayload = payload
	return f.completeResp, f.completeErr
}

func (f *fakeExec) Stream(_ context.Context, payload []byte) (upstream.Stream, error) {
	f.gotPayload = payload
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &sliceStream{frags: f.streamFrags}, nil
}

type sliceStream struct {
	frags [][]byte
	pos   int
}

func (s *sliceStream) Recv() ([]byte, error) {
	if s.pos >= len(s.frags) {
		return nil, io.EOF
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error { return nil }

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/models", h.ListModels)
	r.GET("/v1/models/:model", h.GetModel)
	r.POST("/v1/chat/completions", h.ChatCompletions)
	return r
}

func TestListModels(t *testing.T) {
	h := NewHandler(&fakeExec{}, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Equal(t, "list", gjson.Get(body, "object").String())
	require.Greater(t, gjson.Get(body, "data.#").Int(), int64(5))
}

func TestGetModelKnownAndUnknown(t *testing.T) {
	h := NewHandler(&fakeExec{}, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models/gpt-4o-mini", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "openai/gpt-4o-mini", gjson.Get(w.Body.String(), "id").String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models/no-such-model", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatCompletionsBuffered(t *testing.T) {
	exec := &fakeExec{completeResp: []byte(`{"id":"chatcmpl-1","usage":{"prompt_tokens":9,"completion_tokens":12}}`)}
	tracker := stats.NewTracker(stats.NewMemoryStore())
	h := NewHandler(exec, tracker)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "chatcmpl-1", gjson.Get(w.Body.String(), "id").String())
	// Alias resolved to the full OpenRouter name before invoking.
	require.Equal(t, "openai/gpt-4o-mini", gjson.GetBytes(exec.gotPayload, "model").String())

	sum, err := tracker.Summarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.Total.TotalRequests)
	require.Equal(t, int64(21), sum.Total.TotalTokens)
}

func TestChatCompletionsMissingMessages(t *testing.T) {
	h := NewHandler(&fakeExec{}, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o-mini"}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "missing_messages")
}

func TestChatCompletionsInvalidJSON(t *testing.T) {
	h := NewHandler(&fakeExec{}, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{nope`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_json")
}

func TestChatCompletionsExhaustedPool(t *testing.T) {
	exec := &fakeExec{completeErr: apperrors.ErrAllKeysExhausted}
	h := NewHandler(exec, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "all_keys_exhausted")
}

func TestChatCompletionsStreaming(t *testing.T) {
	exec := &fakeExec{streamFrags: [][]byte{
		[]byte(`{"id":"chatcmpl-1","choices":[{"delta":{"content":"Hel"}}]}`),
		[]byte(`{"id":"chatcmpl-1","choices":[{"delta":{"content":"lo"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`),
	}}
	tracker := stats.NewTracker(stats.NewMemoryStore())
	h := NewHandler(exec, tracker)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	require.Contains(t, body, `"content":"Hel"`)
	require.Contains(t, body, "data: [DONE]\n\n")

	sum, err := tracker.Summarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), sum.Total.TotalTokens)
}

func TestChatCompletionsStreamSetupFailure(t *testing.T) {
	exec := &fakeExec{streamErr: apperrors.ErrAllKeysExhausted}
	h := NewHandler(exec, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	r.ServeHTTP(w, req)

	// Failure before the first fragment still yields a plain JSON error.
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "all_keys_exhausted")
}
