// Package ratelimit implements the token-bucket admission gate shared by
// all in-flight fetches. The bucket refills continuously at
// maxRequests/window tokens per second and is capped at maxRequests, so
// bursts up to the capacity pass without delay while sustained throughput
// converges to the configured rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limiter operations.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_rate_limit_waits_total",
		Help: "Total number of acquires that had to wait for a token",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Limiter is a token-bucket rate limiter. All mutable state (token count
// and refill timestamp) is guarded by a single mutex; the wait between
// refill checks happens outside the lock so a blocked caller never stalls
// other acquirers.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	logger zerolog.Logger
}

// NewLimiter creates a limiter admitting maxRequests per window.
// The bucket starts full, so an initial burst of maxRequests acquires
// passes without waiting.
func NewLimiter(maxRequests int, window time.Duration) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive (got %d)", maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive (got %v)", window)
	}

	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		tokens:      float64(maxRequests),
		lastRefill:  time.Now(),
		logger:      log.With().Str("component", "ratelimit").Logger(),
	}, nil
}

// Acquire blocks until one token is available, then consumes it.
// The only error it returns is ctx.Err() when the context is cancelled
// while waiting; the limiter itself never times out.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	waited := false

	for {
		if l.tryAcquire() {
			if waited {
				rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
			}
			return nil
		}

		if !waited {
			waited = true
			rateLimitWaitsTotal.Inc()
			l.logger.Debug().
				Int("max_requests", l.maxRequests).
				Dur("window", l.window).
				Msg("Rate limit reached, waiting for token")
		}

		// Sleep for one token's worth of time, then re-check.
		interval := l.window / time.Duration(l.maxRequests)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// tryAcquire refills the bucket and consumes a token if one is available.
func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// refill adds tokens for the elapsed time, capped at capacity.
// Caller must hold l.mu.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	rate := float64(l.maxRequests) / l.window.Seconds()

	l.tokens += elapsed * rate
	if l.tokens > float64(l.maxRequests) {
		l.tokens = float64(l.maxRequests)
	}
	l.lastRefill = now
}

// Tokens reports the currently available token count after a refill.
// Intended for tests and diagnostics.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}
