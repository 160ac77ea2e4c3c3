package executor

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/keypool"
	"orfree-go/internal/upstream"
)

// fakeTransport replays a scripted outcome per call, keyed by call order.
type fakeTransport struct {
	mu       sync.Mutex
	calls    int
	secrets  []string
	outcomes []error
	response []byte
	streams  []upstream.Stream
}

func (f *fakeTransport) nextOutcome(secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets = append(f.secrets, secret)
	idx := f.calls
	f.calls++
	if idx < len(f.outcomes) {
		return f.outcomes[idx]
	}
	return nil
}

func (f *fakeTransport) Invoke(_ context.Context, secret string, _ []byte) ([]byte, error) {
	if err := f.nextOutcome(secret); err != nil {
		return nil, err
	}
	return f.response, nil
}

func (f *fakeTransport) InvokeStream(_ context.Context, secret string, _ []byte) (upstream.Stream, error) {
	f.mu.Lock()
	idx := f.calls
	f.mu.Unlock()
	if err := f.nextOutcome(secret); err != nil {
		return nil, err
	}
	if idx < len(f.streams) && f.streams[idx] != nil {
		return f.streams[idx], nil
	}
	return &scriptedStream{}, nil
}

func (f *fakeTransport) Probe(_ context.Context, secret string) error {
	return f.nextOutcome(secret)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedStream yields fragments then a terminal error or EOF.
type scriptedStream struct {
	fragments [][]byte
	finalErr  error
	pos       int
	closed    bool
}

func (s *scriptedStream) Recv() ([]byte, error) {
	if s.pos < len(s.fragments) {
		out := s.fragments[s.pos]
		s.pos++
		return out, nil
	}
	if s.finalErr != nil {
		return nil, s.finalErr
	}
	return nil, io.EOF
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func authErr() *upstream.Error {
	return &upstream.Error{Kind: upstream.FailureAuth, Status: http.StatusUnauthorized, Msg: "invalid key"}
}

func rateLimitErr() *upstream.Error {
	return &upstream.Error{Kind: upstream.FailureRateLimit, Status: http.StatusTooManyRequests, Msg: "rate limited"}
}

func timeoutErr() *upstream.Error {
	return &upstream.Error{Kind: upstream.FailureTimeout, Msg: "deadline exceeded", Err: context.DeadlineExceeded}
}

func newPool(t *testing.T, secrets ...string) *keypool.Pool {
	t.Helper()
	p, err := keypool.New(secrets)
	require.NoError(t, err)
	return p
}

func TestCompleteRotatesPastBadKeys(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough", "key3-long-enough")
	ft := &fakeTransport{
		outcomes: []error{authErr(), rateLimitErr(), nil},
		response: []byte(`{"ok":true}`),
	}
	exec := New(pool, ft, Options{MaxRetries: 3})

	body, err := exec.Complete(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))

	require.Equal(t, []string{"key1-long-enough", "key2-long-enough", "key3-long-enough"}, ft.secrets)

	total, available := pool.Counts()
	require.Equal(t, 3, total)
	require.Equal(t, 1, available)
}

func TestCompleteExhaustedPoolMakesNoCalls(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough")
	for i := 0; i < 2; i++ {
		ks, err := pool.NextCandidate()
		require.NoError(t, err)
		pool.MarkExhausted(ks)
	}

	ft := &fakeTransport{}
	exec := New(pool, ft, Options{MaxRetries: 3})

	_, err := exec.Complete(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrAllKeysExhausted)
	require.Zero(t, ft.callCount())
}

func TestCompleteTimeoutRetriesSameKeyThenFails(t *testing.T) {
	pool := newPool(t, "only-key-long-enough")
	ft := &fakeTransport{outcomes: []error{timeoutErr(), timeoutErr()}}
	exec := New(pool, ft, Options{MaxRetries: 2})

	_, err := exec.Complete(context.Background(), []byte(`{}`))

	var tf *apperrors.TransportFailure
	require.ErrorAs(t, err, &tf)
	require.Equal(t, 2, tf.Attempts)
	require.Equal(t, 2, ft.callCount())
	require.Equal(t, []string{"only-key-long-enough", "only-key-long-enough"}, ft.secrets)

	// A timed-out call never exhausts the key.
	total, available := pool.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, available)
}

func TestCompleteAllKeysRejectedReportsExhaustion(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough", "key3-long-enough")
	ft := &fakeTransport{outcomes: []error{authErr(), authErr(), authErr()}}
	exec := New(pool, ft, Options{MaxRetries: 3})

	_, err := exec.Complete(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrAllKeysExhausted)

	_, available := pool.Counts()
	require.Zero(t, available)
}

func TestCompleteBudgetSpentWithKeysRemaining(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough", "key3-long-enough")
	ft := &fakeTransport{outcomes: []error{authErr(), authErr()}}
	exec := New(pool, ft, Options{MaxRetries: 2})

	_, err := exec.Complete(context.Background(), []byte(`{}`))

	var tf *apperrors.TransportFailure
	require.ErrorAs(t, err, &tf)

	// One key is still usable, so the outcome is a wrapped transport failure,
	// not pool exhaustion.
	_, available := pool.Counts()
	require.Equal(t, 1, available)
}

func TestCompleteBlankKeyFailsFast(t *testing.T) {
	pool := newPool(t, "  ")
	ft := &fakeTransport{}
	exec := New(pool, ft, Options{MaxRetries: 3})

	_, err := exec.Complete(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrInvalidKeyFormat)
	require.Zero(t, ft.callCount())
}

func TestCompleteCancellationLeavesStateUntouched(t *testing.T) {
	pool := newPool(t, "key1-long-enough")
	ctx, cancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	ft := &blockingTransport{block: block}
	exec := New(pool, ft, Options{MaxRetries: 3, RequestTimeout: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := exec.Complete(ctx, []byte(`{}`))
		done <- err
	}()

	cancel()
	close(block)

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	total, available := pool.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, available)
	snap := pool.Snapshot()
	require.Zero(t, snap[0].FailureCount)
}

// blockingTransport waits for the request context to be cancelled.
type blockingTransport struct {
	block chan struct{}
}

func (b *blockingTransport) Invoke(ctx context.Context, _ string, _ []byte) ([]byte, error) {
	<-b.block
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) InvokeStream(ctx context.Context, _ string, _ []byte) (upstream.Stream, error) {
	<-b.block
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) Probe(context.Context, string) error { return nil }

func TestStreamDeliversFragments(t *testing.T) {
	pool := newPool(t, "key1-long-enough")
	ft := &fakeTransport{
		streams: []upstream.Stream{
			&scriptedStream{fragments: [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}},
		},
	}
	exec := New(pool, ft, Options{MaxRetries: 3})

	stream, err := exec.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Recv()
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(first))

	second, err := stream.Recv()
	require.NoError(t, err)
	require.JSONEq(t, `{"b":2}`, string(second))

	_, err = stream.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamRotatesOnPreFirstFragmentFailure(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough")
	ft := &fakeTransport{
		outcomes: []error{authErr(), nil},
		streams: []upstream.Stream{
			nil,
			&scriptedStream{fragments: [][]byte{[]byte(`{"ok":1}`)}},
		},
	}
	exec := New(pool, ft, Options{MaxRetries: 3})

	stream, err := exec.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	fragment, err := stream.Recv()
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":1}`, string(fragment))

	_, available := pool.Counts()
	require.Equal(t, 1, available)
}

func TestStreamMidStreamErrorIsTerminal(t *testing.T) {
	pool := newPool(t, "key1-long-enough", "key2-long-enough")
	ft := &fakeTransport{
		streams: []upstream.Stream{
			&scriptedStream{
				fragments: [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)},
				finalErr:  &upstream.Error{Kind: upstream.FailureTransport, Msg: "connection reset"},
			},
		},
	}
	exec := New(pool, ft, Options{MaxRetries: 3})

	stream, err := exec.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	var fragments [][]byte
	for i := 0; i < 2; i++ {
		fragment, err := stream.Recv()
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}

	_, err = stream.Recv()
	var tf *apperrors.TransportFailure
	require.ErrorAs(t, err, &tf)

	// No retry happened: the transport saw exactly one stream call and both
	// delivered fragments remain the caller's observed output.
	require.Equal(t, 1, ft.callCount())
	require.Len(t, fragments, 2)
}

func TestStreamImmediateEOFIsSuccess(t *testing.T) {
	pool := newPool(t, "key1-long-enough")
	ft := &fakeTransport{streams: []upstream.Stream{&scriptedStream{}}}
	exec := New(pool, ft, Options{MaxRetries: 3})

	stream, err := exec.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.ErrorIs(t, err, io.EOF)
}
