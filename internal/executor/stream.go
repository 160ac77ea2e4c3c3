package executor

import (
	"context"
	"errors"
	"io"

	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/upstream"
)

// Stream performs a streaming chat completion. Failures before the first
// fragment go through the normal classify/rotate path; the first fragment is
// pre-fetched here to make that guarantee hold. Once a fragment has been
// delivered to the caller, a stream error is terminal and never retried,
// since silently retrying would duplicate the partial output.
func (e *Executor) Stream(ctx context.Context, payload []byte) (upstream.Stream, error) {
	var out upstream.Stream
	err := e.run(ctx, func(secret string) error {
		streamCtx, cancel := context.WithTimeout(ctx, e.strTimeout)
		inner, err := e.transport.InvokeStream(streamCtx, secret, payload)
		if err != nil {
			cancel()
			return err
		}
		first, err := inner.Recv()
		if err != nil && !errors.Is(err, io.EOF) {
			_ = inner.Close()
			cancel()
			return err
		}
		done := errors.Is(err, io.EOF)
		out = &replayStream{first: first, hasFirst: !done, done: done, inner: inner, cancel: cancel}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// replayStream re-delivers the pre-fetched first fragment, then proxies the
// underlying stream. Errors after delivery are wrapped as the terminal
// transport-failure kind.
type replayStream struct {
	first    []byte
	hasFirst bool
	done     bool
	inner    upstream.Stream
	cancel   context.CancelFunc
}

func (s *replayStream) Recv() ([]byte, error) {
	if s.hasFirst {
		s.hasFirst = false
		return s.first, nil
	}
	if s.done {
		return nil, io.EOF
	}
	fragment, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return nil, io.EOF
		}
		s.done = true
		return nil, &apperrors.TransportFailure{Attempts: 1, Err: err}
	}
	return fragment, nil
}

func (s *replayStream) Close() error {
	defer s.cancel()
	return s.inner.Close()
}
