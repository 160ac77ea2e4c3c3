package keypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orfree-go/internal/events"

	apperrors "orfree-go/internal/errors"
)

// Pool owns an ordered collection of API keys and implements round-robin
// rotation with exhaustion accounting. Insertion order is rotation order.
//
// All state mutations happen under one pool-level mutex held only for the
// in-memory update, never across a network call.
type Pool struct {
	mu        sync.Mutex
	keys      []*KeyState
	current   int
	exhausted int

	publisher events.Publisher
}

// New constructs a pool from the given secrets. At least one key is required.
func New(secrets []string) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("at least one api key must be provided")
	}
	p := &Pool{keys: make([]*KeyState, 0, len(secrets))}
	for _, s := range secrets {
		p.keys = append(p.keys, &KeyState{Secret: s})
	}
	return p, nil
}

// SetEventPublisher wires the event hub used to broadcast key lifecycle changes.
func (p *Pool) SetEventPublisher(pub events.Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisher = pub
}

func (p *Pool) publish(action, masked string) {
	p.mu.Lock()
	pub := p.publisher
	p.mu.Unlock()
	if pub == nil {
		return
	}
	pub.Publish(context.Background(), events.TopicKeysChanged,
		map[string]string{"action": action, "key": masked}, nil)
}

// NextCandidate returns the next non-exhausted key, scanning forward from the
// rotation pointer and wrapping once. The pointer is advanced past the
// returned key so concurrent callers spread across the pool.
func (p *Pool) NextCandidate() (*KeyState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.keys)
	if n == 0 || p.exhausted >= n {
		return nil, apperrors.ErrAllKeysExhausted
	}
	for i := 0; i < n; i++ {
		idx := (p.current + i) % n
		if ks := p.keys[idx]; !ks.Exhausted {
			p.current = (idx + 1) % n
			return ks, nil
		}
	}
	return nil, apperrors.ErrAllKeysExhausted
}

// MarkExhausted flags the key unusable for the remainder of the process
// lifetime. Idempotent: double-marking never double-counts. A key that was
// removed while its request was in flight is ignored, so the cached count
// always equals the number of exhausted members.
func (p *Pool) MarkExhausted(ks *KeyState) {
	if ks == nil {
		return
	}
	p.mu.Lock()
	if ks.Exhausted || !p.containsLocked(ks) {
		p.mu.Unlock()
		return
	}
	ks.Exhausted = true
	p.exhausted++
	masked := ks.Mask()
	p.mu.Unlock()

	p.publish("exhausted", masked)
}

// containsLocked reports whether ks is still a pool member. Callers hold p.mu.
func (p *Pool) containsLocked(ks *KeyState) bool {
	for _, member := range p.keys {
		if member == ks {
			return true
		}
	}
	return false
}

// MarkSuccess records a successful request against the key.
func (p *Pool) MarkSuccess(ks *KeyState) {
	if ks == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ks.TotalRequests++
	ks.SuccessCount++
	ks.LastSuccess = time.Now()
	ks.LastError = ""
}

// MarkFailure records a failed request against the key without touching its
// eligibility. Used for transport-level failures.
func (p *Pool) MarkFailure(ks *KeyState, reason string) {
	if ks == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ks.TotalRequests++
	ks.FailureCount++
	ks.LastFailure = time.Now()
	ks.LastError = reason
}

// Add appends a new unexhausted key to the rotation order.
func (p *Pool) Add(secret string) *KeyState {
	ks := &KeyState{Secret: secret}
	p.mu.Lock()
	p.keys = append(p.keys, ks)
	masked := ks.Mask()
	p.mu.Unlock()

	p.publish("added", masked)
	return ks
}

// Remove deletes the first key whose secret matches, reporting whether a
// removal occurred. The rotation pointer is re-validated so subsequent
// NextCandidate calls neither skip nor duplicate remaining keys.
func (p *Pool) Remove(secret string) bool {
	p.mu.Lock()
	idx := -1
	for i, ks := range p.keys {
		if ks.Secret == secret {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	removed := p.keys[idx]
	if removed.Exhausted {
		p.exhausted--
	}
	p.keys = append(p.keys[:idx], p.keys[idx+1:]...)
	if idx < p.current {
		p.current--
	}
	if len(p.keys) == 0 || p.current >= len(p.keys) {
		p.current = 0
	}
	masked := removed.Mask()
	p.mu.Unlock()

	p.publish("removed", masked)
	return true
}

// Reset clears every exhausted flag, making all keys eligible again.
// Intended for operator-triggered recovery after quota windows have passed.
func (p *Pool) Reset() {
	p.mu.Lock()
	for _, ks := range p.keys {
		ks.Exhausted = false
	}
	p.exhausted = 0
	p.mu.Unlock()

	p.publish("reset", "")
}

// Counts returns (total, available) key counts.
func (p *Pool) Counts() (total, available int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys), len(p.keys) - p.exhausted
}

// Secrets returns a copy of all secrets in rotation order.
func (p *Pool) Secrets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.keys))
	for i, ks := range p.keys {
		out[i] = ks.Secret
	}
	return out
}

// Snapshot returns display-safe copies of every key's state in rotation order.
func (p *Pool) Snapshot() []KeyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]KeyInfo, len(p.keys))
	for i, ks := range p.keys {
		out[i] = KeyInfo{
			Masked:        ks.Mask(),
			Exhausted:     ks.Exhausted,
			TotalRequests: ks.TotalRequests,
			SuccessCount:  ks.SuccessCount,
			FailureCount:  ks.FailureCount,
			LastSuccess:   ks.LastSuccess,
			LastFailure:   ks.LastFailure,
			LastError:     ks.LastError,
		}
	}
	return out
}

// Sync reconciles the pool against a desired secret list: secrets not yet
// present are added, keys whose secret is gone are removed. Existing keys keep
// their health state. Used by config hot reload.
func (p *Pool) Sync(secrets []string) (added, removed int) {
	desired := make(map[string]struct{}, len(secrets))
	for _, s := range secrets {
		desired[s] = struct{}{}
	}

	p.mu.Lock()
	existing := make(map[string]struct{}, len(p.keys))
	for _, ks := range p.keys {
		existing[ks.Secret] = struct{}{}
	}
	var stale []string
	for _, ks := range p.keys {
		if _, ok := desired[ks.Secret]; !ok {
			stale = append(stale, ks.Secret)
		}
	}
	p.mu.Unlock()

	for _, s := range secrets {
		if _, ok := existing[s]; !ok {
			p.Add(s)
			added++
		}
	}
	for _, s := range stale {
		if p.Remove(s) {
			removed++
		}
	}

	p.mu.Lock()
	pub := p.publisher
	p.mu.Unlock()
	if (added > 0 || removed > 0) && pub != nil {
		total, available := p.Counts()
		pub.Publish(context.Background(), events.TopicKeysSynced,
			map[string]int{"added": added, "removed": removed, "total": total, "available": available}, nil)
	}
	return added, removed
}
