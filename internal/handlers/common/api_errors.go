package common

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/upstream"
)

// MapError translates pipeline errors into the wire-level error envelope.
func MapError(err error) *apperrors.APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		// 499 is nginx's client-closed-request status; gin will not write
		// it if the connection is already gone, which is fine.
		return apperrors.New(499, "request_cancelled", "cancelled", "Request was cancelled by the client")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.New(http.StatusGatewayTimeout, "request_timeout", "timeout_error", "Request timed out")
	case apperrors.IsAllKeysExhausted(err):
		return apperrors.New(http.StatusTooManyRequests, "all_keys_exhausted", "rate_limit_error",
			"All configured credentials are exhausted, try again later or add keys")
	case apperrors.IsInvalidKeyFormat(err):
		return apperrors.New(http.StatusInternalServerError, "invalid_key_format", "server_error",
			"A configured credential is malformed")
	}

	var tf *apperrors.TransportFailure
	if errors.As(err, &tf) {
		return apperrors.New(http.StatusBadGateway, "upstream_error", "upstream_error", tf.Error())
	}

	var ue *upstream.Error
	if errors.As(err, &ue) {
		return apperrors.MapHTTPError(ue.Status, []byte(ue.Msg))
	}

	return apperrors.New(http.StatusInternalServerError, "internal_error", "server_error", err.Error())
}

// RespondError writes the mapped error as JSON and aborts the request.
func RespondError(c *gin.Context, err error) {
	apiErr := MapError(err)
	c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{
		"error": gin.H{
			"message": apiErr.Message,
			"type":    apiErr.Type,
			"code":    apiErr.Code,
		},
	})
}
