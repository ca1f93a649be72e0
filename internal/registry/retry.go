package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datalith-io/lakeq/internal/domain"
)

// RetryConfig bounds the rate-limit retry loop.
type RetryConfig struct {
	MaxAttempts int           // total attempts, default 5
	BaseDelay   time.Duration // first backoff, default 200ms
	MaxDelay    time.Duration // backoff cap, default 5s
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	return c
}

// WithRetry decorates fn with bounded exponential backoff on rate-limit
// failures. Other errors pass through untouched. Once attempts are
// exhausted the failure surfaces as an upstream failure.
func WithRetry(fn EmbeddingFunction, cfg RetryConfig) EmbeddingFunction {
	return &retried{inner: fn, cfg: cfg.withDefaults()}
}

type retried struct {
	inner EmbeddingFunction
	cfg   RetryConfig
}

func (r *retried) ComputeQueryEmbeddings(ctx context.Context, queryText string) ([][]float32, error) {
	delay := r.cfg.BaseDelay
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		vecs, err := r.inner.ComputeQueryEmbeddings(ctx, queryText)
		if err == nil {
			return vecs, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			return nil, err
		}
		lastErr = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	return nil, fmt.Errorf("%w: embedding rate limit persisted after %d attempts: %v",
		domain.ErrUpstream, r.cfg.MaxAttempts, lastErr)
}
