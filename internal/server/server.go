// Package server assembles the HTTP surface: middleware stack, inference
// routes, management routes and operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"orfree-go/internal/config"
	"orfree-go/internal/constants"
	"orfree-go/internal/events"
	"orfree-go/internal/handlers/management"
	"orfree-go/internal/handlers/openai"
	"orfree-go/internal/keypool"
	"orfree-go/internal/middleware"
	"orfree-go/internal/probe"
	"orfree-go/internal/stats"
)

// Dependencies carries the wired application components into the server.
type Dependencies struct {
	Pool     *keypool.Pool
	Executor openai.ChatExecutor
	Prober   *probe.Prober
	Usage    *stats.Tracker
	Hub      *events.Hub
}

// Server owns the gin engine and the http.Server lifecycle.
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	httpSrv *http.Server
	limiter *middleware.RateLimiter
}

// New builds a fully routed server from configuration and dependencies.
func New(cfg *config.Config, deps Dependencies) *Server {
	if !cfg.Security.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		limiter: middleware.NewRateLimiter(cfg.Security.RateLimitPerMin),
	}
	s.engine = s.buildRouter(deps)
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: s.engine,
		// Streaming responses can be long-lived; only bound header reads.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.CORS(),
		middleware.RequestLogger(),
		middleware.Metrics(),
	)

	root := r.Group(s.cfg.Server.BasePath)

	root.GET("/health", s.healthHandler(deps.Pool))
	root.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chat := openai.NewHandler(deps.Executor, deps.Usage)
	v1 := root.Group("/v1",
		middleware.APIKeyAuth(s.cfg.Security.APIKeys),
		s.limiter.Middleware(),
	)
	v1.GET("/models", chat.ListModels)
	v1.GET("/models/:model", chat.GetModel)
	v1.POST("/chat/completions", chat.ChatCompletions)

	mgmt := management.NewHandler(s.cfg, deps.Pool, deps.Prober, deps.Usage, deps.Hub)
	m := root.Group("/v0/management", mgmt.Auth())
	m.GET("/keys", mgmt.ListKeys)
	m.POST("/keys", mgmt.AddKeys)
	m.DELETE("/keys", mgmt.RemoveKey)
	m.POST("/keys/reset", mgmt.ResetPool)
	m.POST("/keys/probe", mgmt.ProbeKeys)
	m.GET("/usage", mgmt.UsageStats)
	m.DELETE("/usage", mgmt.ResetUsage)
	m.GET("/system", mgmt.SystemInfo)
	m.GET("/events", mgmt.EventStream)

	return r
}

func (s *Server) healthHandler(pool *keypool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		total, available := pool.Counts()
		status := "ok"
		code := http.StatusOK
		if available == 0 {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":         status,
			"version":        constants.Version,
			"keys_total":     total,
			"keys_available": available,
		})
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.httpSrv.Addr).Info("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	s.limiter.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
