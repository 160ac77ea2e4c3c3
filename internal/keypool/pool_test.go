package keypool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "orfree-go/internal/errors"
)

func TestNewRequiresAtLeastOneKey(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	p, err := New([]string{"key1"})
	require.NoError(t, err)
	total, available := p.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, available)
}

func TestRotationOrder(t *testing.T) {
	p, err := New([]string{"key1", "key2", "key3"})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 6; i++ {
		ks, err := p.NextCandidate()
		require.NoError(t, err)
		got = append(got, ks.Secret)
	}
	require.Equal(t, []string{"key1", "key2", "key3", "key1", "key2", "key3"}, got)
}

func TestNextCandidateSkipsExhausted(t *testing.T) {
	p, err := New([]string{"key1", "key2", "key3"})
	require.NoError(t, err)

	first, err := p.NextCandidate()
	require.NoError(t, err)
	p.MarkExhausted(first)

	for i := 0; i < 4; i++ {
		ks, err := p.NextCandidate()
		require.NoError(t, err)
		require.NotEqual(t, first.Secret, ks.Secret)
	}
}

func TestFullExhaustionAndReset(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ks, err := p.NextCandidate()
		require.NoError(t, err)
		p.MarkExhausted(ks)
	}

	_, err = p.NextCandidate()
	require.ErrorIs(t, err, apperrors.ErrAllKeysExhausted)

	total, available := p.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 0, available)

	p.Reset()
	total, available = p.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 2, available)

	_, err = p.NextCandidate()
	require.NoError(t, err)
}

func TestMarkExhaustedIdempotent(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	ks, err := p.NextCandidate()
	require.NoError(t, err)

	p.MarkExhausted(ks)
	p.MarkExhausted(ks)

	_, available := p.Counts()
	require.Equal(t, 1, available)
}

func TestMarkExhaustedIdempotentUnderRaces(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	ks, err := p.NextCandidate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.MarkExhausted(ks)
		}()
	}
	wg.Wait()

	_, available := p.Counts()
	require.Equal(t, 1, available)
}

func TestMasking(t *testing.T) {
	long := &KeyState{Secret: "sk-or-v1-1234567890abcdef"}
	require.Equal(t, "sk-or-...abcdef", long.Mask())

	short := &KeyState{Secret: "short"}
	require.Equal(t, "***", short.Mask())

	// Exactly at the threshold stays fully hidden.
	boundary := &KeyState{Secret: "123456789012"}
	require.Equal(t, "***", boundary.Mask())
}

func TestRemove(t *testing.T) {
	p, err := New([]string{"key1", "key2", "key3"})
	require.NoError(t, err)

	require.False(t, p.Remove("nonexistent"))
	total, available := p.Counts()
	require.Equal(t, 3, total)
	require.Equal(t, 3, available)

	require.True(t, p.Remove("key2"))
	total, available = p.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 2, available)
}

func TestRemoveExhaustedAdjustsCount(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	ks, err := p.NextCandidate()
	require.NoError(t, err)
	p.MarkExhausted(ks)

	require.True(t, p.Remove(ks.Secret))
	total, available := p.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, available)
}

func TestMarkExhaustedAfterRemoveKeepsCountsConsistent(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	// A request is in flight with key1 when the operator removes it.
	ks, err := p.NextCandidate()
	require.NoError(t, err)
	require.True(t, p.Remove(ks.Secret))

	// The in-flight request fails and reports its (now orphaned) key.
	p.MarkExhausted(ks)

	total, available := p.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, available)

	next, err := p.NextCandidate()
	require.NoError(t, err)
	require.Equal(t, "key2", next.Secret)
}

func TestRemovePointedToKeyKeepsRotationConsistent(t *testing.T) {
	p, err := New([]string{"key1", "key2", "key3"})
	require.NoError(t, err)

	// Advance pointer so it references key2 next.
	_, err = p.NextCandidate()
	require.NoError(t, err)

	require.True(t, p.Remove("key2"))

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		ks, err := p.NextCandidate()
		require.NoError(t, err)
		seen[ks.Secret]++
	}
	require.Equal(t, 2, seen["key1"])
	require.Equal(t, 2, seen["key3"])
	require.Zero(t, seen["key2"])
}

func TestRemoveLastKeyThenNextCandidate(t *testing.T) {
	p, err := New([]string{"key1"})
	require.NoError(t, err)

	require.True(t, p.Remove("key1"))
	_, err = p.NextCandidate()
	require.ErrorIs(t, err, apperrors.ErrAllKeysExhausted)
}

func TestAddAppendsToRotation(t *testing.T) {
	p, err := New([]string{"key1"})
	require.NoError(t, err)

	p.Add("key2")
	first, err := p.NextCandidate()
	require.NoError(t, err)
	second, err := p.NextCandidate()
	require.NoError(t, err)
	require.Equal(t, "key1", first.Secret)
	require.Equal(t, "key2", second.Secret)
}

func TestSnapshotMasksSecrets(t *testing.T) {
	p, err := New([]string{"sk-or-v1-1234567890abcdef", "tiny"})
	require.NoError(t, err)

	ks, err := p.NextCandidate()
	require.NoError(t, err)
	p.MarkSuccess(ks)

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "sk-or-...abcdef", snap[0].Masked)
	require.Equal(t, "***", snap[1].Masked)
	require.Equal(t, int64(1), snap[0].SuccessCount)
}

func TestSyncReconcilesSecrets(t *testing.T) {
	p, err := New([]string{"key1", "key2"})
	require.NoError(t, err)

	ks, err := p.NextCandidate()
	require.NoError(t, err)
	p.MarkExhausted(ks)

	added, removed := p.Sync([]string{"key2", "key3"})
	require.Equal(t, 1, added)
	require.Equal(t, 1, removed)

	total, available := p.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 2, available)
}

func TestConcurrentNextCandidate(t *testing.T) {
	p, err := New([]string{"key1", "key2", "key3", "key4"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ks, err := p.NextCandidate()
				require.NoError(t, err)
				require.NotNil(t, ks)
			}
		}()
	}
	wg.Wait()

	total, available := p.Counts()
	require.Equal(t, 4, total)
	require.Equal(t, 4, available)
}
