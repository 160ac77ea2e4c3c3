// Package management implements the operator API: key CRUD, pool reset,
// health probes, usage stats, and a WebSocket event feed.
package management

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"orfree-go/internal/config"
	"orfree-go/internal/constants"
	"orfree-go/internal/events"
	"orfree-go/internal/keypool"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/probe"
	"orfree-go/internal/stats"
)

var startTime = time.Now()

// Handler bundles the dependencies of the management surface.
type Handler struct {
	cfg    *config.Config
	pool   *keypool.Pool
	prober *probe.Prober
	usage  *stats.Tracker
	hub    *events.Hub
}

func NewHandler(cfg *config.Config, pool *keypool.Pool, prober *probe.Prober, usage *stats.Tracker, hub *events.Hub) *Handler {
	return &Handler{cfg: cfg, pool: pool, prober: prober, usage: usage, hub: hub}
}

// Auth guards management routes with the configured management key.
func (h *Handler) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		// WebSocket clients cannot set headers from browsers, allow query param.
		if token == "" {
			token = c.Query("key")
		}
		if err := config.CheckManagementKey(token, h.cfg.Security.ManagementKey, h.cfg.Security.ManagementKeyHash); err != nil {
			log.WithField("client_ip", c.ClientIP()).Warn("Rejected management request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "Invalid management key",
					"type":    "authentication_error",
					"code":    "invalid_management_key",
				},
			})
			return
		}
		c.Next()
	}
}

// ListKeys returns a display-safe snapshot of every key in rotation order.
func (h *Handler) ListKeys(c *gin.Context) {
	snapshot := h.pool.Snapshot()
	total, available := h.pool.Counts()
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"available": available,
		"keys":      snapshot,
	})
}

type addKeysRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

// AddKeys appends one or more keys to the pool.
func (h *Handler) AddKeys(c *gin.Context) {
	var req addKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Field 'keys' is required and must be a string array",
				"type":    "invalid_request_error",
				"code":    "invalid_body",
			},
		})
		return
	}

	existing := make(map[string]struct{})
	for _, s := range h.pool.Secrets() {
		existing[s] = struct{}{}
	}
	added := 0
	for _, key := range req.Keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		h.pool.Add(key)
		added++
	}

	total, available := h.pool.Counts()
	monitoring.SetPoolGauges(total, available)
	log.WithFields(log.Fields{"added": added, "total": total}).Info("Keys added via management API")
	c.JSON(http.StatusOK, gin.H{"added": added, "total": total, "available": available})
}

// RemoveKey deletes a key by its full secret, passed in the request body so
// it never lands in access logs.
func (h *Handler) RemoveKey(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Field 'key' is required",
				"type":    "invalid_request_error",
				"code":    "invalid_body",
			},
		})
		return
	}
	if !h.pool.Remove(req.Key) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"message": "Key not found in pool",
				"type":    "invalid_request_error",
				"code":    "key_not_found",
			},
		})
		return
	}
	total, available := h.pool.Counts()
	monitoring.SetPoolGauges(total, available)
	c.JSON(http.StatusOK, gin.H{"removed": true, "total": total, "available": available})
}

// ResetPool clears all exhausted flags.
func (h *Handler) ResetPool(c *gin.Context) {
	h.pool.Reset()
	total, available := h.pool.Counts()
	monitoring.SetPoolGauges(total, available)
	log.Info("Key pool reset via management API")
	c.JSON(http.StatusOK, gin.H{"reset": true, "total": total, "available": available})
}

// ProbeKeys runs a liveness probe across the whole pool and returns per-key
// results keyed by masked secret.
func (h *Handler) ProbeKeys(c *gin.Context) {
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"message": "Probing is not configured",
				"type":    "server_error",
				"code":    "probe_unavailable",
			},
		})
		return
	}
	start := time.Now()
	results := h.prober.Run(c.Request.Context(), h.pool)

	healthy := 0
	for _, r := range results {
		if r.Healthy {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"probed":      len(results),
		"healthy":     healthy,
		"duration_ms": time.Since(start).Milliseconds(),
		"results":     results,
	})
}

// UsageStats returns the aggregated usage summary.
func (h *Handler) UsageStats(c *gin.Context) {
	if h.usage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"message": "Usage tracking is not configured",
				"type":    "server_error",
				"code":    "stats_unavailable",
			},
		})
		return
	}
	summary, err := h.usage.Summarize(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": "Failed to read usage statistics: " + err.Error(),
				"type":    "server_error",
				"code":    "stats_read_failed",
			},
		})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ResetUsage clears all usage counters.
func (h *Handler) ResetUsage(c *gin.Context) {
	if h.usage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"message": "Usage tracking is not configured",
				"type":    "server_error",
				"code":    "stats_unavailable",
			},
		})
		return
	}
	if err := h.usage.ResetAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": "Failed to reset usage statistics: " + err.Error(),
				"type":    "server_error",
				"code":    "stats_reset_failed",
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// SystemInfo reports process-level diagnostics.
func (h *Handler) SystemInfo(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	total, available := h.pool.Counts()
	c.JSON(http.StatusOK, gin.H{
		"version":        constants.Version,
		"build_time":     constants.BuildTime,
		"go_version":     runtime.Version(),
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / (1 << 20),
		"keys_total":     total,
		"keys_available": available,
	})
}
