package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// extractBearer pulls a token from Authorization: Bearer or x-api-key.
func extractBearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	return ""
}

// APIKeyAuth guards the inference surface. With an empty allow list every
// caller is admitted; the presented token is still recorded for logging.
func APIKeyAuth(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if len(allowed) == 0 {
			c.Set("api_key", anonymize(token))
			c.Next()
			return
		}

		for _, key := range allowed {
			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
				c.Set("api_key", anonymize(token))
				c.Next()
				return
			}
		}

		log.WithFields(log.Fields{
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
		}).Warn("Rejected request with invalid API key")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "Invalid API key",
				"type":    "authentication_error",
				"code":    "invalid_api_key",
			},
		})
	}
}

func anonymize(token string) string {
	if token == "" {
		return "anonymous"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
