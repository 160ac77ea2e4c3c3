// Package openai implements the OpenAI-compatible inference surface.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"orfree-go/internal/handlers/common"
	"orfree-go/internal/models"
	"orfree-go/internal/stats"
	"orfree-go/internal/upstream"
)

// maxRequestBody caps inbound request bodies at 10 MiB.
const maxRequestBody = 10 << 20

// ChatExecutor is the slice of the request pipeline the handler needs.
type ChatExecutor interface {
	Complete(ctx context.Context, payload []byte) ([]byte, error)
	Stream(ctx context.Context, payload []byte) (upstream.Stream, error)
}

// Handler serves /v1/models and /v1/chat/completions.
type Handler struct {
	exec  ChatExecutor
	usage *stats.Tracker
}

func NewHandler(exec ChatExecutor, usage *stats.Tracker) *Handler {
	return &Handler{exec: exec, usage: usage}
}

// ListModels returns the predefined model catalog in OpenAI list format.
func (h *Handler) ListModels(c *gin.Context) {
	data := make([]gin.H, 0, len(models.Models))
	for _, m := range models.List() {
		data = append(data, gin.H{
			"id":             m.Name,
			"object":         "model",
			"created":        0,
			"owned_by":       "openrouter",
			"context_length": m.ContextLength,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// GetModel returns metadata for one model by alias or full name.
func (h *Handler) GetModel(c *gin.Context) {
	name := c.Param("model")
	info, known := models.Lookup(name)
	if !known {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"message": "Model not found: " + name,
				"type":    "invalid_request_error",
				"code":    "model_not_found",
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                info.Name,
		"object":            "model",
		"created":           0,
		"owned_by":          "openrouter",
		"context_length":    info.ContextLength,
		"max_output_tokens": info.MaxOutputTokens,
	})
}

// ChatCompletions proxies a chat completion through the rotating key pool,
// in either buffered or streaming mode depending on the request body.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Request body is not valid JSON",
				"type":    "invalid_request_error",
				"code":    "invalid_json",
			},
		})
		return
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Field 'messages' is required and must be an array",
				"type":    "invalid_request_error",
				"code":    "missing_messages",
			},
		})
		return
	}

	// Without an explicit model the transport falls back to the configured
	// default, so only resolve aliases when the field is present.
	model := "default"
	if requested := gjson.GetBytes(body, "model").String(); requested != "" {
		info, _ := models.Lookup(requested)
		if resolved := info.OpenRouterName(); resolved != requested {
			body, _ = sjson.SetBytes(body, "model", resolved)
		}
		model = info.Name
	}
	c.Set("model", model)

	if gjson.GetBytes(body, "stream").Bool() {
		h.streamCompletion(c, body, model)
		return
	}
	h.bufferedCompletion(c, body, model)
}

func (h *Handler) bufferedCompletion(c *gin.Context, body []byte, model string) {
	resp, err := h.exec.Complete(c.Request.Context(), body)
	if err != nil {
		h.recordUsage(c, model, false, nil)
		common.RespondError(c, err)
		return
	}
	h.recordUsage(c, model, true, resp)
	c.Data(http.StatusOK, "application/json", resp)
}

func (h *Handler) streamCompletion(c *gin.Context, body []byte, model string) {
	stream, err := h.exec.Stream(c.Request.Context(), body)
	if err != nil {
		h.recordUsage(c, model, false, nil)
		common.RespondError(c, err)
		return
	}
	defer stream.Close()

	common.PrepareSSE(c)

	var lastWithUsage []byte
	for {
		fragment, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.WithError(err).Warn("stream terminated mid-flight")
			common.SSEWriteError(c, err)
			h.recordUsage(c, model, false, lastWithUsage)
			return
		}
		if gjson.GetBytes(fragment, "usage").Exists() {
			lastWithUsage = fragment
		}
		if werr := common.SSEWriteData(c, fragment); werr != nil {
			// Client went away; nothing more to write.
			h.recordUsage(c, model, false, lastWithUsage)
			return
		}
	}
	common.SSEWriteDone(c)
	h.recordUsage(c, model, true, lastWithUsage)
}

// recordUsage attributes a finished request to the caller's API key and the
// served model. Token counts come from the response body when present.
func (h *Handler) recordUsage(c *gin.Context, model string, success bool, resp []byte) {
	if h.usage == nil {
		return
	}
	var prompt, completion int64
	if len(resp) > 0 {
		prompt = gjson.GetBytes(resp, "usage.prompt_tokens").Int()
		completion = gjson.GetBytes(resp, "usage.completion_tokens").Int()
	}
	h.usage.Record(c.Request.Context(), c.GetString("api_key"), model, success, prompt, completion)
}
