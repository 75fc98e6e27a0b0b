// Package breaker implements a per-endpoint circuit breaker registry.
// Each endpoint gets its own failure-state machine: Closed endpoints pass
// requests through, Open endpoints are rejected without a network attempt,
// and HalfOpen endpoints admit a single probe after the recovery timeout.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for circuit breaker state changes.
var (
	circuitTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_circuit_transitions_total",
		Help: "Total circuit breaker state transitions by target state",
	}, []string{"state"})

	circuitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_circuit_rejections_total",
		Help: "Total requests rejected by an open circuit",
	})
)

// State is the circuit state for a single endpoint.
type State int

const (
	// StateClosed passes requests through.
	StateClosed State = iota

	// StateOpen rejects requests without attempting them.
	StateOpen

	// StateHalfOpen admits a single probing request after recovery.
	StateHalfOpen
)

// String returns the state name for logging and metrics.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// record is the breaker state for one endpoint. Entries are created
// lazily on first reference and live for the registry's lifetime.
type record struct {
	failures int
	state    State
	openedAt time.Time
}

// Registry tracks circuit state per endpoint. A single registry-wide
// mutex guards all records; lock granularity does not affect correctness,
// only contention.
type Registry struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu      sync.Mutex
	records map[string]*record

	logger zerolog.Logger
}

// NewRegistry creates a circuit breaker registry. Every endpoint starts
// in the Closed state on first reference.
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration) (*Registry, error) {
	if failureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive (got %d)", failureThreshold)
	}
	if recoveryTimeout <= 0 {
		return nil, fmt.Errorf("recovery timeout must be positive (got %v)", recoveryTimeout)
	}

	return &Registry{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		records:          make(map[string]*record),
		logger:           log.With().Str("component", "breaker").Logger(),
	}, nil
}

// State returns the current state for an endpoint. An Open circuit whose
// recovery timeout has elapsed transitions to HalfOpen as a side effect
// of the read, so a probe is always eventually allowed.
func (r *Registry) State(endpoint string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[endpoint]
	if !ok {
		return StateClosed
	}

	if rec.state == StateOpen && time.Since(rec.openedAt) >= r.recoveryTimeout {
		rec.state = StateHalfOpen
		circuitTransitionsTotal.WithLabelValues(StateHalfOpen.String()).Inc()
		r.logger.Info().
			Str("endpoint", endpoint).
			Msg("Circuit recovery timeout elapsed, allowing probe")
	}

	return rec.state
}

// Allow reports whether a request to the endpoint may proceed.
// Closed and HalfOpen circuits allow requests; Open circuits do not.
func (r *Registry) Allow(endpoint string) bool {
	if r.State(endpoint) == StateOpen {
		circuitRejectionsTotal.Inc()
		return false
	}
	return true
}

// RecordSuccess resets the endpoint's failure count and closes its circuit.
func (r *Registry) RecordSuccess(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(endpoint)
	wasOpen := rec.state != StateClosed

	rec.failures = 0
	rec.state = StateClosed

	if wasOpen {
		circuitTransitionsTotal.WithLabelValues(StateClosed.String()).Inc()
		r.logger.Info().
			Str("endpoint", endpoint).
			Msg("Circuit closed after successful probe")
	}
}

// RecordFailure increments the endpoint's failure count and opens the
// circuit once the threshold is reached. A failed HalfOpen probe reopens
// the circuit immediately with a fresh recovery window.
func (r *Registry) RecordFailure(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(endpoint)
	rec.failures++

	if rec.state == StateHalfOpen || rec.failures >= r.failureThreshold {
		rec.state = StateOpen
		rec.openedAt = time.Now()
		circuitTransitionsTotal.WithLabelValues(StateOpen.String()).Inc()
		r.logger.Warn().
			Str("endpoint", endpoint).
			Int("failures", rec.failures).
			Dur("recovery_timeout", r.recoveryTimeout).
			Msg("Circuit opened")
	}
}

// FailureCount returns the consecutive failure count for an endpoint.
// Intended for tests and diagnostics.
func (r *Registry) FailureCount(endpoint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[endpoint]
	if !ok {
		return 0
	}
	return rec.failures
}

// record returns the entry for endpoint, creating it lazily.
// Caller must hold r.mu.
func (r *Registry) record(endpoint string) *record {
	rec, ok := r.records[endpoint]
	if !ok {
		rec = &record{state: StateClosed}
		r.records[endpoint] = rec
	}
	return rec
}
