// Package executor orchestrates a single logical chat-completion request
// against the key pool: pick a key, invoke the transport, classify the
// outcome, rotate or retry within a shared budget.
package executor

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"orfree-go/internal/constants"
	apperrors "orfree-go/internal/errors"
	"orfree-go/internal/keypool"
	"orfree-go/internal/monitoring"
	"orfree-go/internal/upstream"
)

// state enumerates the per-request state machine. Keeping the transition
// function explicit keeps the retry-budget accounting auditable in isolation
// from any real network call.
type state int

const (
	stateSelect state = iota
	stateInvoke
	stateClassify
)

// Options configure an Executor.
type Options struct {
	// MaxRetries is the shared budget for key-rotation retries and
	// same-key transport retries combined.
	MaxRetries int
	// RequestTimeout bounds each non-stream transport call.
	RequestTimeout time.Duration
	// StreamTimeout bounds each streaming transport call end to end.
	StreamTimeout time.Duration
}

// Executor holds a shared (not owned) pool reference, a transport, and the
// retry policy. It carries no per-request state between calls.
type Executor struct {
	pool       *keypool.Pool
	transport  upstream.Transport
	maxRetries int
	reqTimeout time.Duration
	strTimeout time.Duration
}

// New constructs an executor with defaults applied for zero option values.
func New(pool *keypool.Pool, transport upstream.Transport, opts Options) *Executor {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxRetries
	}
	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = constants.UpstreamRequestTimeout
	}
	strTimeout := opts.StreamTimeout
	if strTimeout <= 0 {
		strTimeout = constants.UpstreamStreamTimeout
	}
	return &Executor{
		pool:       pool,
		transport:  transport,
		maxRetries: maxRetries,
		reqTimeout: reqTimeout,
		strTimeout: strTimeout,
	}
}

// Complete performs a synchronous chat completion, rotating keys per policy.
func (e *Executor) Complete(ctx context.Context, payload []byte) ([]byte, error) {
	var result []byte
	err := e.run(ctx, func(secret string) error {
		callCtx, cancel := context.WithTimeout(ctx, e.reqTimeout)
		defer cancel()
		body, err := e.transport.Invoke(callCtx, secret, payload)
		if err != nil {
			return err
		}
		result = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// run drives the state machine until a terminal outcome. call performs one
// transport attempt with the selected secret and returns nil on success or
// the transport's classified error.
func (e *Executor) run(ctx context.Context, call func(secret string) error) error {
	var (
		current *keypool.KeyState
		lastErr error
	)
	budget := e.maxRetries
	attempts := 0
	st := stateSelect

	for {
		switch st {
		case stateSelect:
			ks, err := e.pool.NextCandidate()
			if err != nil {
				return apperrors.ErrAllKeysExhausted
			}
			if strings.TrimSpace(ks.Secret) == "" {
				return apperrors.ErrInvalidKeyFormat
			}
			current = ks
			st = stateInvoke

		case stateInvoke:
			attempts++
			err := call(current.Secret)
			if err == nil {
				e.pool.MarkSuccess(current)
				return nil
			}
			lastErr = err
			st = stateClassify

		case stateClassify:
			// Caller abandoned the request: no key-state mutation for
			// this attempt, the cancellation is surfaced untouched.
			if ctx.Err() != nil {
				return ctx.Err()
			}

			ue, ok := upstream.AsError(lastErr)
			if ok && ue.KeyFailure() {
				e.pool.MarkExhausted(current)
				monitoring.KeyRotationsTotal.WithLabelValues(ue.Kind.String()).Inc()
				log.WithFields(log.Fields{
					"key":    current.Mask(),
					"kind":   ue.Kind.String(),
					"status": ue.Status,
				}).Warn("key rejected by upstream, rotating")

				budget--
				if budget <= 0 {
					if _, available := e.pool.Counts(); available == 0 {
						return apperrors.ErrAllKeysExhausted
					}
					return &apperrors.TransportFailure{Attempts: attempts, Err: lastErr}
				}
				st = stateSelect
				continue
			}

			// Transport-level failure: the key is not at fault, retry it.
			reason := lastErr.Error()
			if ok {
				reason = ue.Kind.String()
			}
			e.pool.MarkFailure(current, reason)
			monitoring.UpstreamRetriesTotal.WithLabelValues(reason).Inc()

			budget--
			if budget <= 0 {
				return &apperrors.TransportFailure{Attempts: attempts, Err: lastErr}
			}
			log.WithFields(log.Fields{
				"key":    current.Mask(),
				"reason": reason,
				"budget": budget,
			}).Debug("transport failure, retrying with same key")
			st = stateInvoke
		}
	}
}
