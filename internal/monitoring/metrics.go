package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orfree_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orfree_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orfree_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Key pool metrics
	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orfree_key_rotations_total",
			Help: "Total number of key rotations by failure kind",
		},
		[]string{"kind"},
	)

	KeysTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orfree_keys_total",
			Help: "Number of keys currently in the pool",
		},
	)

	KeysAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orfree_keys_available",
			Help: "Number of non-exhausted keys currently in the pool",
		},
	)

	// Upstream metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orfree_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"mode", "status_class"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orfree_upstream_request_duration_seconds",
			Help:    "Upstream API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orfree_upstream_retries_total",
			Help: "Total number of same-key transport retries by reason",
		},
		[]string{"reason"},
	)

	// Probe metrics
	ProbeResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orfree_probe_results_total",
			Help: "Total number of key probe results by outcome",
		},
		[]string{"outcome"},
	)

	// Rate limiting
	RateLimitKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orfree_ratelimit_keys",
			Help: "Number of per-client rate limiters currently cached",
		},
	)
)

// SetPoolGauges records current pool counts.
func SetPoolGauges(total, available int) {
	KeysTotal.Set(float64(total))
	KeysAvailable.Set(float64(available))
}
