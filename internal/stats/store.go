package stats

import (
	"context"
	"sync"
)

// Store persists usage counters. Keys are arbitrary buckets, fields are
// counter names within a bucket.
type Store interface {
	Increment(ctx context.Context, key, field string, delta int64) error
	Get(ctx context.Context, key string) (map[string]int64, error)
	List(ctx context.Context) (map[string]map[string]int64, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// MemoryStore keeps counters in process memory. Used when no Redis URL is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]int64)}
}

func (m *MemoryStore) Increment(_ context.Context, key, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.buckets[key]
	if !ok {
		bucket = make(map[string]int64)
		m.buckets[key] = bucket
	}
	bucket[field] += delta
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for field, v := range m.buckets[key] {
		out[field] = v
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context) (map[string]map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]int64, len(m.buckets))
	for key, bucket := range m.buckets {
		copied := make(map[string]int64, len(bucket))
		for field, v := range bucket {
			copied[field] = v
		}
		out[key] = copied
	}
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
