package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"orfree-go/internal/config"
	"orfree-go/internal/constants"
	"orfree-go/internal/events"
	"orfree-go/internal/executor"
	"orfree-go/internal/keypool"
	"orfree-go/internal/logging"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/monitoring/tracing"
	"orfree-go/internal/probe"
	"orfree-go/internal/server"
	"orfree-go/internal/stats"
	"orfree-go/internal/upstream/openrouter"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	hashKey := flag.String("hash-management-key", "", "print a bcrypt hash for the given management key and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(constants.GetFullVersion())
		return
	}
	if *hashKey != "" {
		hash, err := config.HashManagementKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to hash key:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logging:", err)
		os.Exit(1)
	}

	log.WithFields(log.Fields{
		"version": constants.Version,
		"config":  *configPath,
	}).Info("Starting orfree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx)
	if err != nil {
		log.WithError(err).Warn("Tracing initialization failed, continuing without traces")
	}

	pool, err := keypool.New(cfg.Keys)
	if err != nil {
		log.WithError(err).Fatal("No usable API keys configured")
	}
	hub := events.NewHub()
	pool.SetEventPublisher(hub)
	log.AddHook(logging.NewHubHook(hub))
	total, available := pool.Counts()
	monitoring.SetPoolGauges(total, available)

	transport := openrouter.New(openrouter.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		Model:      cfg.Upstream.Model,
		ProbeModel: cfg.Probe.Model,
		ProxyURL:   cfg.Upstream.ProxyURL,
		Referer:    cfg.Upstream.Referer,
		Title:      cfg.Upstream.Title,
	})

	exec := executor.New(pool, transport, executor.Options{
		MaxRetries:     cfg.Upstream.MaxRetries,
		RequestTimeout: cfg.RequestTimeout(),
		StreamTimeout:  cfg.StreamTimeout(),
	})

	prober := probe.New(transport, probe.Options{
		Concurrency: cfg.Probe.Concurrency,
		Timeout:     cfg.ProbeTimeout(),
		LaunchRate:  cfg.Probe.LaunchRate,
	})
	prober.SetEventPublisher(hub)

	var store stats.Store
	if cfg.Stats.RedisURL != "" {
		redisStore, err := stats.NewRedisStore(ctx, cfg.Stats.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis usage store")
		}
		store = redisStore
		log.Info("Usage tracking backed by Redis")
	} else {
		store = stats.NewMemoryStore()
	}
	defer store.Close()
	usage := stats.NewTracker(store)

	// Keep the available-keys gauge fresh as rotation exhausts keys.
	hub.SubscribeAll(func(_ context.Context, ev events.Event) {
		if ev.Topic == events.TopicKeysChanged || ev.Topic == events.TopicKeysSynced {
			t, a := pool.Counts()
			monitoring.SetPoolGauges(t, a)
		}
	})

	watcher := config.NewWatcher(*configPath, func(updated *config.Config) {
		added, removed := pool.Sync(updated.Keys)
		if added > 0 || removed > 0 {
			log.WithFields(log.Fields{"added": added, "removed": removed}).Info("Key pool synced from config reload")
		}
		hub.Publish(context.Background(), events.TopicConfigUpdated, nil, nil)
	})
	if err := watcher.Start(); err != nil {
		log.WithError(err).Warn("Config hot reload unavailable")
	} else {
		defer watcher.Stop()
	}

	srv := server.New(cfg, server.Dependencies{
		Pool:     pool,
		Executor: exec,
		Prober:   prober,
		Usage:    usage,
		Hub:      hub,
	})

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("Server exited with error")
	}

	if shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("Trace flush failed")
		}
	}
	log.Info("Shutdown complete")
}
