// keycheck probes every configured API key once and prints a per-key health
// report. Exit code 1 means at least one key is unhealthy, 2 means none are.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"orfree-go/internal/config"
	"orfree-go/internal/keypool"
	"orfree-go/internal/probe"
	"orfree-go/internal/upstream/openrouter"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	concurrency := flag.Int("concurrency", 0, "max simultaneous probes (0 uses config)")
	timeout := flag.Duration("timeout", 0, "per-probe timeout (0 uses config)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}

	pool, err := keypool.New(cfg.Keys)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no keys to check:", err)
		os.Exit(2)
	}

	transport := openrouter.New(openrouter.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		Model:      cfg.Upstream.Model,
		ProbeModel: cfg.Probe.Model,
		ProxyURL:   cfg.Upstream.ProxyURL,
		Referer:    cfg.Upstream.Referer,
		Title:      cfg.Upstream.Title,
	})

	opts := probe.Options{
		Concurrency: cfg.Probe.Concurrency,
		Timeout:     cfg.ProbeTimeout(),
		LaunchRate:  cfg.Probe.LaunchRate,
	}
	if *concurrency > 0 {
		opts.Concurrency = *concurrency
	}
	if *timeout > 0 {
		opts.Timeout = *timeout
	}

	start := time.Now()
	results := probe.New(transport, opts).Run(context.Background(), pool)

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	healthy := 0
	for _, k := range keys {
		r := results[k]
		status := "FAIL"
		if r.Healthy {
			status = "OK"
			healthy++
		}
		line := fmt.Sprintf("%-4s %s  %6dms", status, k, r.Latency.Milliseconds())
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}

	fmt.Printf("\n%d/%d keys healthy in %s\n", healthy, len(results), time.Since(start).Round(time.Millisecond))
	switch {
	case healthy == len(results):
		os.Exit(0)
	case healthy > 0:
		os.Exit(1)
	default:
		os.Exit(2)
	}
}
