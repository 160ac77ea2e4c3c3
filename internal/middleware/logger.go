package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"orfree-go/internal/logging"
)

// RequestLogger logs HTTP requests with latency and caller context.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		ridVal, _ := c.Get("request_id")
		apiKeyVal, _ := c.Get("api_key")
		modelVal, _ := c.Get("model")
		log.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"method":     method,
			"path":       path,
			"request_id": ridVal,
			"api_key":    apiKeyVal,
			"model":      modelVal,
		}).Info("http_request")
	}
}
