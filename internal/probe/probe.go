// Package probe exercises every key in a pool with a minimal upstream call
// and reports per-key liveness. Probing is purely diagnostic: a failing probe
// never exhausts a key.
package probe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"orfree-go/internal/constants"
	"orfree-go/internal/events"
	"orfree-go/internal/keypool"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/upstream"
)

// Result captures one key's probe outcome.
type Result struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

// Options configure a Prober.
type Options struct {
	// Concurrency caps simultaneous outstanding probe calls.
	Concurrency int
	// Timeout bounds each individual probe call.
	Timeout time.Duration
	// LaunchRate optionally paces probe launches (probes per second) so that
	// probing many keys does not itself trigger rate limiting. Zero disables
	// pacing.
	LaunchRate float64
}

// Prober runs bounded-concurrency liveness checks against a transport.
type Prober struct {
	transport   upstream.Transport
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	publisher   events.Publisher
}

// New constructs a prober with defaults applied for zero option values.
func New(transport upstream.Transport, opts Options) *Prober {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultProbeConcurrency
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultProbeTimeout
	}
	p := &Prober{
		transport:   transport,
		concurrency: concurrency,
		timeout:     timeout,
	}
	if opts.LaunchRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.LaunchRate), 1)
	}
	return p
}

// SetEventPublisher wires the event hub notified when a probe run completes.
func (p *Prober) SetEventPublisher(pub events.Publisher) { p.publisher = pub }

// Run probes every key currently in the pool and returns a map from masked
// key identifier to result. All probes complete before returning; there is
// no short-circuit on first failure, and no key state is mutated.
func (p *Prober) Run(ctx context.Context, pool *keypool.Pool) map[string]Result {
	runID := uuid.NewString()
	secrets := pool.Secrets()
	results := make(map[string]Result, len(secrets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.concurrency)

	for _, secret := range secrets {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				break
			}
		}

		wg.Add(1)
		go func(secret string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result := p.probeOne(ctx, secret)
			mu.Lock()
			results[keypool.MaskSecret(secret)] = result
			mu.Unlock()
		}(secret)
	}
	wg.Wait()

	healthy := 0
	for _, r := range results {
		if r.Healthy {
			healthy++
			monitoring.ProbeResultsTotal.WithLabelValues("healthy").Inc()
		} else {
			monitoring.ProbeResultsTotal.WithLabelValues("unhealthy").Inc()
		}
	}
	log.WithFields(log.Fields{
		"run_id":  runID,
		"probed":  len(results),
		"healthy": healthy,
	}).Info("key probe run completed")

	if p.publisher != nil {
		p.publisher.Publish(ctx, events.TopicProbeCompleted,
			map[string]int{"probed": len(results), "healthy": healthy},
			map[string]string{"run_id": runID})
	}
	return results
}

func (p *Prober) probeOne(ctx context.Context, secret string) Result {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.transport.Probe(probeCtx, secret)
	result := Result{
		Healthy: err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
