package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Manager is the Redis-backed Store implementation. Entries share one
// fixed TTL; Redis evicts them on expiry, and the entry's own Expires
// field covers clock skew between writer and reader.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager storing payloads for ttl.
func NewManager(redisClient *redis.Client, ttl time.Duration) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive (got %v)", ttl)
	}

	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}, nil
}

// Get retrieves the cached payload for an endpoint.
// Returns ErrMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, endpoint string) ([]byte, error) {
	data, err := m.redis.Get(ctx, Key(endpoint)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.redis.Del(ctx, Key(endpoint)).Err()
		cacheMisses.Inc()
		return nil, ErrMiss
	}

	cacheHits.Inc()
	return entry.Payload, nil
}

// Set stores a payload for an endpoint with the manager's TTL.
func (m *Manager) Set(ctx context.Context, endpoint string, payload []byte) error {
	now := time.Now()
	entry := Entry{
		Payload:   payload,
		FetchedAt: now,
		Expires:   now.Add(m.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, Key(endpoint), data, m.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
