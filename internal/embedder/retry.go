package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// DefaultRetryAttempts is the total attempt cap per embedding call.
	DefaultRetryAttempts = 3

	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 10 * time.Second
)

// RetryingEmbedder wraps an Embedder with bounded exponential backoff.
// Embedding calls are idempotent, so transient network and rate-limit
// failures at this boundary are safe to retry; failures elsewhere in the
// pipeline are not retried here.
type RetryingEmbedder struct {
	inner    Embedder
	attempts int
}

// NewRetryingEmbedder wraps inner with at most attempts tries per call.
// attempts <= 0 selects DefaultRetryAttempts.
func NewRetryingEmbedder(inner Embedder, attempts int) *RetryingEmbedder {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &RetryingEmbedder{inner: inner, attempts: attempts}
}

func (r *RetryingEmbedder) backoff() retry.Backoff {
	b := retry.NewExponential(defaultRetryBase)
	b = retry.WithMaxDuration(defaultRetryMax, b)
	// attempts-1 retries after the initial try.
	return retry.WithMaxRetries(uint64(r.attempts-1), b)
}

// Embed delegates to the wrapped embedder, retrying transient failures.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		var callErr error
		vec, callErr = r.inner.Embed(ctx, text)
		return retryable(ctx, callErr)
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch delegates to the wrapped embedder, retrying transient failures.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		var callErr error
		vecs, callErr = r.inner.EmbedBatch(ctx, texts)
		return retryable(ctx, callErr)
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// retryable marks an error for retry unless the context is already done.
func retryable(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return retry.RetryableError(err)
}

// Dimension returns the dimensionality of the embedding vectors.
func (r *RetryingEmbedder) Dimension() int { return r.inner.Dimension() }

// ModelName returns the name of the embedding model being used.
func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }

// Ensure RetryingEmbedder implements Embedder interface.
var _ Embedder = (*RetryingEmbedder)(nil)
