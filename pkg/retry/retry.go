// Package retry executes an attempt function with bounded
// exponential-backoff retries. The delay before retry n is
// BaseDelay * 2^n (0-indexed) and applies only between attempts,
// never after the last one.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_retry_backoff_seconds",
		Help:    "Backoff duration between retry attempts",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// Common errors returned by Do.
var (
	// ErrExhausted is returned when all attempts failed; the last attempt's
	// error is wrapped alongside it.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// Config holds the retry policy.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first (>= 1).
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles each attempt.
	BaseDelay time.Duration
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}
}

// Validate checks the policy for construction-time errors.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive (got %v)", c.BaseDelay)
	}
	return nil
}

// Do executes fn until it succeeds or the policy is exhausted. A single
// success short-circuits further attempts. Context cancellation aborts
// immediately, both during an attempt (fn receives ctx) and during
// backoff; the ctx error is returned unwrapped so callers can detect it.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Debug().
					Int("attempt", attempt+1).
					Msg("Attempt succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		// Caller-initiated aborts are terminal, never retried.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		// No delay after the final attempt.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		retriesTotal.Inc()
		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		retryBackoffSeconds.Observe(delay.Seconds())

		log.Debug().
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Attempt failed, retrying after backoff")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	retryExhaustedTotal.Inc()
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}
