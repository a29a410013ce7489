package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A value of 0 means no retries. Default: 3.
	MaxRetries int

	// InitialBackoff is the base delay before the first retry. Default: 5s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 60s.
	MaxBackoff time.Duration

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.3 = ±30%). Default: 0.3.
	JitterFraction float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the retry number and error.
	OnRetry func(retry int, err error)
}

// DefaultRetryConfig returns the retry configuration used for model calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		JitterFraction: 0.3,
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// Backoff returns the delay before the given retry (0-based), doubling from
// InitialBackoff up to MaxBackoff, with ±JitterFraction random jitter.
func (cfg RetryConfig) Backoff(retry int) time.Duration {
	cfg = applyDefaults(cfg)
	delay := float64(cfg.InitialBackoff) * math.Pow(2, float64(retry))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange // [-jitterRange, +jitterRange]
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// DoVal executes fn with retry logic according to cfg, preserving the return
// value of the successful call. Only errors deemed transient (via ShouldRetry
// or the default IsTransient check) are retried. Context cancellation stops
// retries immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		// Don't retry on context cancellation.
		if ctx.Err() != nil {
			return zero, lastErr
		}

		if !shouldRetry(lastErr) {
			return zero, lastErr
		}

		// Don't sleep after the last attempt.
		if attempt >= cfg.MaxRetries {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(retry int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
}
