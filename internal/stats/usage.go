package stats

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	aggregateTotalKey    = "__system__/total"
	aggregateModelPrefix = "__system__/model/"
)

// UsageRecord is a snapshot of counters for one bucket.
type UsageRecord struct {
	Key              string `json:"key"`
	TotalRequests    int64  `json:"total_requests"`
	SuccessRequests  int64  `json:"success_requests"`
	FailedRequests   int64  `json:"failed_requests"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// SuccessRate returns the percentage of successful requests.
func (r *UsageRecord) SuccessRate() float64 {
	if r.TotalRequests == 0 {
		return 0
	}
	return float64(r.SuccessRequests) / float64(r.TotalRequests) * 100
}

// Tracker records per-credential and per-model usage counters. Credentials
// are always recorded under their masked form; raw secrets never reach the
// store.
type Tracker struct {
	store Store
	mu    sync.Mutex
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Record registers one completed request attributed to a masked credential
// and a model name.
func (t *Tracker) Record(ctx context.Context, maskedKey, model string, success bool, promptTokens, completionTokens int64) {
	if t == nil || t.store == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	record := func(bucket string) {
		if bucket == "" {
			return
		}
		inc := func(field string, delta int64) {
			if delta == 0 {
				return
			}
			if err := t.store.Increment(ctx, bucket, field, delta); err != nil {
				log.WithError(err).WithField("bucket", bucket).Warn("Failed to record usage")
			}
		}
		inc("total_requests", 1)
		if success {
			inc("success_requests", 1)
		} else {
			inc("failed_requests", 1)
		}
		inc("prompt_tokens", promptTokens)
		inc("completion_tokens", completionTokens)
		inc("total_tokens", promptTokens+completionTokens)
	}

	record(maskedKey)
	record(aggregateTotalKey)
	if m := strings.TrimSpace(model); m != "" {
		record(aggregateModelPrefix + m)
	}
}

// Get returns the counters for one bucket.
func (t *Tracker) Get(ctx context.Context, bucket string) (*UsageRecord, error) {
	counters, err := t.store.Get(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return recordFromCounters(bucket, counters), nil
}

// Summary aggregates everything the store holds, split into per-credential
// records, per-model records, and the overall total.
type Summary struct {
	Total       *UsageRecord            `json:"total"`
	Credentials map[string]*UsageRecord `json:"credentials"`
	Models      map[string]*UsageRecord `json:"models"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Summarize reads all buckets and classifies them.
func (t *Tracker) Summarize(ctx context.Context) (*Summary, error) {
	all, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Total:       &UsageRecord{Key: "total"},
		Credentials: make(map[string]*UsageRecord),
		Models:      make(map[string]*UsageRecord),
		GeneratedAt: time.Now().UTC(),
	}
	for bucket, counters := range all {
		rec := recordFromCounters(bucket, counters)
		switch {
		case bucket == aggregateTotalKey:
			rec.Key = "total"
			sum.Total = rec
		case strings.HasPrefix(bucket, aggregateModelPrefix):
			model := strings.TrimPrefix(bucket, aggregateModelPrefix)
			rec.Key = model
			sum.Models[model] = rec
		default:
			sum.Credentials[bucket] = rec
		}
	}
	return sum, nil
}

// ResetAll clears every bucket.
func (t *Tracker) ResetAll(ctx context.Context) error {
	all, err := t.store.List(ctx)
	if err != nil {
		return err
	}
	for bucket := range all {
		if err := t.store.Reset(ctx, bucket); err != nil {
			log.WithError(err).WithField("bucket", bucket).Error("Failed to reset usage bucket")
		}
	}
	return nil
}

func recordFromCounters(bucket string, counters map[string]int64) *UsageRecord {
	return &UsageRecord{
		Key:              bucket,
		TotalRequests:    counters["total_requests"],
		SuccessRequests:  counters["success_requests"],
		FailedRequests:   counters["failed_requests"],
		PromptTokens:     counters["prompt_tokens"],
		CompletionTokens: counters["completion_tokens"],
		TotalTokens:      counters["total_tokens"],
	}
}
