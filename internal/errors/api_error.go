package errors

import (
	"encoding/json"
	"net/http"
)

// APIError represents a standardized error exposed on the HTTP surface.
type APIError struct {
	HTTPStatus int
	Code       string
	Type       string
	Message    string
}

// New constructs an APIError.
func New(status int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: status, Code: code, Type: errType, Message: message}
}

func (e *APIError) Error() string { return e.Message }

// openAIEnvelope mirrors OpenAI's error envelope.
type openAIEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// ToJSON renders the error in the OpenAI envelope format.
func (e *APIError) ToJSON() ([]byte, error) {
	var env openAIEnvelope
	env.Error.Message = e.Message
	env.Error.Type = e.Type
	env.Error.Code = e.Code
	return json.Marshal(env)
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// ExtractUpstreamMessage pulls a human-readable message out of an upstream
// error body, falling back to a truncated raw body.
func ExtractUpstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if errObj, ok := payload["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	msg := string(body)
	if len(msg) > 200 {
		return msg[:200] + "..."
	}
	return msg
}

// MapHTTPError maps an upstream HTTP status and body to a standardized error.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	upstreamMsg := ExtractUpstreamMessage(upstreamBody)

	switch statusCode {
	case http.StatusBadRequest:
		return New(statusCode, "invalid_request_error", "invalid_request_error", firstNonEmpty(upstreamMsg, "Invalid request"))
	case http.StatusUnauthorized:
		return New(statusCode, "invalid_api_key", "authentication_error", firstNonEmpty(upstreamMsg, "Invalid authentication"))
	case http.StatusPaymentRequired:
		return New(statusCode, "insufficient_quota", "rate_limit_error", firstNonEmpty(upstreamMsg, "Quota exceeded"))
	case http.StatusForbidden:
		return New(statusCode, "permission_denied", "permission_error", firstNonEmpty(upstreamMsg, "Permission denied"))
	case http.StatusNotFound:
		return New(statusCode, "not_found", "invalid_request_error", firstNonEmpty(upstreamMsg, "Resource not found"))
	case http.StatusTooManyRequests:
		return New(statusCode, "rate_limit_exceeded", "rate_limit_error", firstNonEmpty(upstreamMsg, "Rate limit exceeded"))
	case http.StatusServiceUnavailable:
		return New(statusCode, "service_unavailable", "server_error", firstNonEmpty(upstreamMsg, "Service temporarily unavailable"))
	case http.StatusGatewayTimeout:
		return New(statusCode, "timeout", "timeout_error", firstNonEmpty(upstreamMsg, "Request timeout"))
	default:
		return New(statusCode, "upstream_error", "server_error", firstNonEmpty(upstreamMsg, http.StatusText(statusCode)))
	}
}
