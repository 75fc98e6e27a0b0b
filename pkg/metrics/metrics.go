// Package metrics provides the central Prometheus registry reference for
// the fetch aggregator. Metrics are defined in their respective packages
// (aggregator, ratelimit, breaker, retry, cache) to maintain modularity
// and avoid circular dependencies.
//
// This package documents the full metric catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the aggregator.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Aggregator Metrics (pkg/aggregator):
//   - fetch_requests_total{status} (Counter): Completed endpoint fetches by
//     outcome (success, failure, circuit_open, cached, cancelled)
//   - fetch_duration_seconds (Histogram): Per-endpoint fetch duration,
//     including rate limiter waits and retries
//   - fetch_batch_duration_seconds (Histogram): Whole-batch FetchAll duration
//   - fetch_batch_size (Histogram): Number of endpoints per FetchAll call
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fetch_rate_limit_waits_total (Counter): Acquires that had to wait
//   - fetch_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//
// Circuit Breaker Metrics (pkg/breaker):
//   - fetch_circuit_transitions_total{state} (Counter): State transitions by
//     target state (open, half_open, closed)
//   - fetch_circuit_rejections_total (Counter): Requests vetoed by an open circuit
//
// Retry Metrics (pkg/retry):
//   - fetch_retries_total (Counter): Retry attempts
//   - fetch_retry_backoff_seconds (Histogram): Backoff duration between attempts
//   - fetch_retry_exhausted_total (Counter): Fetches that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - fetch_cache_hits_total (Counter): Payload cache hits
//   - fetch_cache_misses_total (Counter): Payload cache misses
//   - fetch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Fetch success rate
//   sum(rate(fetch_requests_total{status="success"}[5m])) /
//   sum(rate(fetch_requests_total[5m]))
//
//   # Endpoints currently short-circuited
//   rate(fetch_circuit_rejections_total[5m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(fetch_duration_seconds_bucket[5m]))
//
//   # Rate limiter pressure
//   rate(fetch_rate_limit_waits_total[5m])
