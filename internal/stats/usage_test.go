package stats

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordAndGet(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())
	ctx := context.Background()

	tracker.Record(ctx, "sk-or-...abc123", "gpt-4o-mini", true, 100, 20)
	tracker.Record(ctx, "sk-or-...abc123", "gpt-4o-mini", false, 50, 0)

	rec, err := tracker.Get(ctx, "sk-or-...abc123")
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.TotalRequests)
	require.Equal(t, int64(1), rec.SuccessRequests)
	require.Equal(t, int64(1), rec.FailedRequests)
	require.Equal(t, int64(150), rec.PromptTokens)
	require.Equal(t, int64(20), rec.CompletionTokens)
	require.Equal(t, int64(170), rec.TotalTokens)
	require.InDelta(t, 50.0, rec.SuccessRate(), 0.001)
}

func TestTrackerSummarize(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())
	ctx := context.Background()

	tracker.Record(ctx, "sk-or-...aaa111", "gpt-4o-mini", true, 10, 5)
	tracker.Record(ctx, "sk-or-...bbb222", "llama-3.3-70b", true, 20, 10)

	sum, err := tracker.Summarize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.Total.TotalRequests)
	require.Len(t, sum.Credentials, 2)
	require.Len(t, sum.Models, 2)
	require.Equal(t, int64(1), sum.Models["gpt-4o-mini"].TotalRequests)
	require.Equal(t, int64(30), sum.Models["llama-3.3-70b"].TotalTokens)
}

func TestTrackerResetAll(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())
	ctx := context.Background()

	tracker.Record(ctx, "sk-or-...aaa111", "gpt-4o-mini", true, 10, 5)
	require.NoError(t, tracker.ResetAll(ctx))

	sum, err := tracker.Summarize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), sum.Total.TotalRequests)
	require.Empty(t, sum.Credentials)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	defer store.Close()

	ctx := context.Background()
	tracker := NewTracker(store)
	tracker.Record(ctx, "sk-or-...ccc333", "deepseek-chat-v3.1", true, 5, 7)

	rec, err := tracker.Get(ctx, "sk-or-...ccc333")
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.TotalRequests)
	require.Equal(t, int64(12), rec.TotalTokens)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "sk-or-...ccc333")
	require.Contains(t, all, "__system__/total")

	require.NoError(t, store.Reset(ctx, "sk-or-...ccc333"))
	rec, err = tracker.Get(ctx, "sk-or-...ccc333")
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.TotalRequests)
}
