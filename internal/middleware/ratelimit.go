package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"orfree-go/internal/monitoring"
)

const limiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client request rate. Clients are keyed by the
// authenticated API key when present, falling back to the remote IP.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	stop    chan struct{}
}

// NewRateLimiter builds a limiter allowing perMinute requests per client.
// A perMinute of zero disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		stop:    make(chan struct{}),
	}
	if perMinute > 0 {
		SafeGo("ratelimit-janitor", rl.janitor)
	}
	return rl
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-limiterTTL)
			for key, entry := range rl.entries {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.entries, key)
				}
			}
			monitoring.RateLimitKeysGauge.Set(float64(len(rl.entries)))
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[key] = entry
		monitoring.RateLimitKeysGauge.Set(float64(len(rl.entries)))
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Middleware returns the gin handler enforcing the configured rate.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.burst <= 0 {
			c.Next()
			return
		}
		key := c.GetString("api_key")
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message": "Rate limit exceeded, slow down",
					"type":    "rate_limit_error",
					"code":    "client_rate_limited",
				},
			})
			return
		}
		c.Next()
	}
}
