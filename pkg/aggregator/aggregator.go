// Package aggregator orchestrates resilient concurrent fetches across many
// remote endpoints. Each endpoint is processed by its own goroutine and
// threaded through circuit breaker, optional payload cache, shared token
// bucket, and retry executor before reaching the transport; results are
// fanned back in to a single aggregated result.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avollmer/fetch-aggregator/pkg/breaker"
	"github.com/avollmer/fetch-aggregator/pkg/cache"
	"github.com/avollmer/fetch-aggregator/pkg/ratelimit"
	"github.com/avollmer/fetch-aggregator/pkg/retry"
	"github.com/avollmer/fetch-aggregator/pkg/transport"
)

// Prometheus metrics for aggregator operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_requests_total",
		Help: "Completed endpoint fetches by outcome",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_duration_seconds",
		Help:    "Per-endpoint fetch duration including waits and retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	fetchBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_batch_duration_seconds",
		Help:    "Whole-batch FetchAll duration",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})

	fetchBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_batch_size",
		Help:    "Number of endpoints per FetchAll call",
		Buckets: []float64{1, 5, 10, 50, 100, 500},
	})
)

// Failure reasons recorded in Result.Failed.
const (
	// ReasonCircuitOpen marks endpoints vetoed by an open circuit.
	ReasonCircuitOpen = "circuit breaker open"

	// ReasonTimeout marks endpoints whose every attempt exceeded the
	// per-request timeout.
	ReasonTimeout = "timeout"

	// ReasonCancelled marks endpoints aborted by caller-side cancellation.
	ReasonCancelled = "cancelled"
)

// errAttemptTimeout is the internal marker for a timed-out attempt; it is
// retryable and surfaces as ReasonTimeout once attempts are exhausted.
var errAttemptTimeout = errors.New(ReasonTimeout)

// Config holds the aggregator configuration.
type Config struct {
	// Transport performs the actual fetch for one endpoint (required).
	Transport transport.Client

	// Cache is an optional payload cache consulted before the rate
	// limiter; nil disables caching.
	Cache cache.Store

	// RateLimit is the token bucket capacity per RateWindow.
	RateLimit int

	// RateWindow is the refill window for RateLimit tokens.
	RateWindow time.Duration

	// RequestTimeout bounds each individual fetch attempt.
	RequestTimeout time.Duration

	// MaxRetryAttempts is the total number of attempts per endpoint,
	// including the first.
	MaxRetryAttempts int

	// RetryBaseDelay is the backoff before the first retry; it doubles
	// with each further attempt.
	RetryBaseDelay time.Duration

	// CircuitFailureThreshold opens an endpoint's circuit after this many
	// consecutive failed fetches.
	CircuitFailureThreshold int

	// CircuitRecoveryTimeout is how long an open circuit waits before
	// allowing a probe.
	CircuitRecoveryTimeout time.Duration
}

// DefaultConfig returns a safe default configuration around the given
// transport: 10 requests/second, 5s per-attempt timeout, 3 attempts with
// 100ms base backoff, circuit opening after 5 failures and recovering
// after 30s.
func DefaultConfig(client transport.Client) Config {
	return Config{
		Transport:               client,
		RateLimit:               10,
		RateWindow:              time.Second,
		RequestTimeout:          5 * time.Second,
		MaxRetryAttempts:        3,
		RetryBaseDelay:          100 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitRecoveryTimeout:  30 * time.Second,
	}
}

// Aggregator fans fetches out across endpoints while enforcing the shared
// rate ceiling and per-endpoint circuit breaking. One instance owns one
// rate limiter bucket and one breaker registry; both persist across
// FetchAll calls and are never reset between them.
type Aggregator struct {
	transport transport.Client
	cache     cache.Store
	limiter   *ratelimit.Limiter
	breakers  *breaker.Registry

	retryCfg       retry.Config
	requestTimeout time.Duration

	logger zerolog.Logger
}

// New creates an aggregator. Misconfiguration fails here, not at call time.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive (got %v)", cfg.RequestTimeout)
	}

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateWindow)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	breakers, err := breaker.NewRegistry(cfg.CircuitFailureThreshold, cfg.CircuitRecoveryTimeout)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}
	if err := retryCfg.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	return &Aggregator{
		transport:      cfg.Transport,
		cache:          cfg.Cache,
		limiter:        limiter,
		breakers:       breakers,
		retryCfg:       retryCfg,
		requestTimeout: cfg.RequestTimeout,
		logger:         log.With().Str("component", "aggregator").Logger(),
	}, nil
}

// outcome is the terminal result of one endpoint's processing.
type outcome struct {
	endpoint string
	payload  []byte
	reason   string
	ok       bool
	status   string // metric label
}

// FetchAll fetches every endpoint concurrently and aggregates the
// outcomes. It never fails as a whole: individual endpoint failures are
// recorded in Result.Failed. Cancelling ctx stops in-flight waits
// promptly and reports the affected endpoints as failed with reason
// "cancelled".
func (a *Aggregator) FetchAll(ctx context.Context, endpoints []string, onProgress ProgressFunc) *Result {
	start := time.Now()
	total := len(endpoints)

	fetchBatchSize.Observe(float64(total))
	a.logger.Info().
		Int("endpoints", total).
		Msg("Starting fetch batch")

	result := &Result{
		Successful: make(map[string][]byte, total),
		Failed:     make(map[string]string),
	}

	outcomes := make(chan outcome, total)

	var wg sync.WaitGroup
	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			fetchStart := time.Now()
			out := a.fetchOne(ctx, endpoint)
			fetchDuration.Observe(time.Since(fetchStart).Seconds())
			fetchRequestsTotal.WithLabelValues(out.status).Inc()
			outcomes <- out
		}(endpoint)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Fan-in. Receiving on one channel serializes progress emission, so
	// Completed counts are monotonic and each endpoint reports once.
	completed := 0
	for out := range outcomes {
		completed++
		if out.ok {
			result.Successful[out.endpoint] = out.payload
		} else {
			result.Failed[out.endpoint] = out.reason
		}

		if onProgress != nil {
			a.emitProgress(onProgress, Progress{
				Completed: completed,
				Total:     total,
				Endpoint:  out.endpoint,
				Succeeded: out.ok,
				Err:       out.reason,
			})
		}
	}

	result.Duration = time.Since(start)
	fetchBatchDuration.Observe(result.Duration.Seconds())

	a.logger.Info().
		Int("succeeded", result.SuccessCount()).
		Int("failed", result.FailureCount()).
		Dur("duration", result.Duration).
		Msg("Fetch batch complete")

	return result
}

// fetchOne runs the full per-endpoint pipeline: circuit check, cache
// lookup, then rate-gated retried fetch attempts.
func (a *Aggregator) fetchOne(ctx context.Context, endpoint string) outcome {
	// Pre-flight veto. An open circuit consumes no rate token and no
	// retry budget; the breaker is not consulted again mid-sequence.
	if !a.breakers.Allow(endpoint) {
		a.logger.Debug().
			Str("endpoint", endpoint).
			Msg("Skipping endpoint, circuit open")
		return outcome{endpoint: endpoint, reason: ReasonCircuitOpen, status: "circuit_open"}
	}

	if a.cache != nil {
		if payload, err := a.cache.Get(ctx, endpoint); err == nil {
			a.logger.Debug().
				Str("endpoint", endpoint).
				Msg("Serving endpoint from cache")
			return outcome{endpoint: endpoint, payload: payload, ok: true, status: "cached"}
		}
	}

	var lastErr error
	payload, err := retry.Do(ctx, a.retryCfg, func(ctx context.Context) ([]byte, error) {
		payload, err := a.attempt(ctx, endpoint)
		if err != nil {
			lastErr = err
		}
		return payload, err
	})
	if err != nil {
		// Report the last attempt's own error, not the retry wrapper
		// around it.
		if errors.Is(err, retry.ErrExhausted) && lastErr != nil {
			err = lastErr
		}
		reason, status := failureReason(err)

		// Cancellation is a caller-side abort, not evidence against the
		// endpoint; it leaves the breaker untouched.
		if reason != ReasonCancelled {
			a.breakers.RecordFailure(endpoint)
		}

		a.logger.Error().
			Str("endpoint", endpoint).
			Str("reason", reason).
			Msg("Endpoint fetch failed")
		return outcome{endpoint: endpoint, reason: reason, status: status}
	}

	a.breakers.RecordSuccess(endpoint)

	if a.cache != nil {
		if err := a.cache.Set(ctx, endpoint, payload); err != nil {
			a.logger.Warn().
				Str("endpoint", endpoint).
				Err(err).
				Msg("Failed to cache payload")
		}
	}

	return outcome{endpoint: endpoint, payload: payload, ok: true, status: "success"}
}

// attempt performs one rate-gated, time-bounded transport call. Each
// attempt re-acquires its own rate token; retries are not exempt from
// rate limiting.
func (a *Aggregator) attempt(ctx context.Context, endpoint string) ([]byte, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	type fetchResult struct {
		payload []byte
		err     error
	}

	// The transport receives both the deadline context and the timeout
	// value; the select enforces the bound even against implementations
	// that honor neither.
	done := make(chan fetchResult, 1)
	go func() {
		payload, err := a.transport.Get(attemptCtx, endpoint, a.requestTimeout)
		done <- fetchResult{payload, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, errAttemptTimeout
			}
			return nil, res.err
		}
		return res.payload, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errAttemptTimeout
	}
}

// emitProgress invokes the progress sink, recovering panics so a broken
// callback cannot abort the orchestration.
func (a *Aggregator) emitProgress(onProgress ProgressFunc, p Progress) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn().
				Str("endpoint", p.Endpoint).
				Interface("panic", r).
				Msg("Progress callback panicked")
		}
	}()
	onProgress(p)
}

// failureReason maps a terminal fetch error to its result reason string
// and metric status label.
func failureReason(err error) (reason, status string) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled, "cancelled"
	case errors.Is(err, errAttemptTimeout):
		return ReasonTimeout, "failure"
	default:
		return err.Error(), "failure"
	}
}
