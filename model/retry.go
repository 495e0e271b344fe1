package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/agentstream/core"
)

// ErrRetryExhausted is wrapped by the error returned after the last attempt.
var ErrRetryExhausted = errors.New("retries exhausted")

// RetryConfig tunes NewRetryMiddleware. Zero fields take the defaults noted.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Default 3.
	MaxRetries int
	// InitialBackoff before the first retry. Default 500ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed backoff. Default 10s.
	MaxBackoff time.Duration
	// BackoffFactor is the exponential growth per attempt. Default 2.
	BackoffFactor float64
	// JitterFraction adds up to this share of the backoff at random. Default 0.1.
	JitterFraction float64
	// Retryable reports whether err may be retried. By default everything
	// except cancellation and protocol errors is retried.
	Retryable func(err error) bool
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2
	}
	if c.JitterFraction == 0 {
		c.JitterFraction = 0.1
	}
	if c.Retryable == nil {
		c.Retryable = func(err error) bool {
			return !core.IsCancellation(err) && core.KindOf(err) != core.KindProtocol
		}
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	base := float64(c.InitialBackoff) * math.Pow(c.BackoffFactor, float64(attempt))
	if base > float64(c.MaxBackoff) {
		base = float64(c.MaxBackoff)
	}

	jitter := base * c.JitterFraction * rand.Float64() //nolint:gosec // jitter only

	return time.Duration(base + jitter)
}

// NewRetryMiddleware retries failed calls with exponential backoff. For
// streaming calls only the call setup is retried; once a source has been
// returned its failures are final.
func NewRetryMiddleware(cfg RetryConfig) Middleware {
	cfg.applyDefaults()

	return Middleware{
		WrapGenerate: func(ctx context.Context, call Call) (*GenerateResult, error) {
			return retry(ctx, cfg, call.DoGenerate)
		},
		WrapStream: func(ctx context.Context, call Call) (*StreamResult, error) {
			return retry(ctx, cfg, call.DoStream)
		},
	}
}

func retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(cfg.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		lastErr = err

		if !cfg.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, cfg.MaxRetries, lastErr)
}
