// Package cache provides an optional Redis-backed payload cache for the
// aggregator. A cached endpoint is served without consuming a rate token
// or touching its circuit breaker counts. When no cache is configured the
// aggregator behaves identically without this package.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss indicates the requested endpoint was not found in cache.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the payload cache contract consumed by the aggregator.
// Get returns ErrMiss when no fresh payload exists for the endpoint.
type Store interface {
	Get(ctx context.Context, endpoint string) ([]byte, error)
	Set(ctx context.Context, endpoint string, payload []byte) error
}

// Entry is a cached payload for one endpoint.
type Entry struct {
	// Payload is the opaque response body.
	Payload []byte `json:"payload"`

	// FetchedAt is when the payload was fetched from the endpoint.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Key generates the Redis key for an endpoint's cached payload.
func Key(endpoint string) string {
	return "fetch:cache:" + endpoint
}
