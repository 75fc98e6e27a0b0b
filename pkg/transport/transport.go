// Package transport defines the collaborator contract the aggregator
// uses to perform a single fetch, and provides a default HTTP
// implementation built on resty.
package transport

import (
	"context"
	"time"
)

// Client fetches the payload for one endpoint. Implementations fail with
// an error when the remote is unreachable, returns non-success, or the
// timeout elapses; the aggregator additionally imposes its own deadline
// regardless of whether the implementation enforces one.
type Client interface {
	Get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error)
}

// Func adapts an ordinary function into a Client.
type Func func(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error)

// Get calls the underlying function.
func (f Func) Get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error) {
	return f(ctx, endpoint, timeout)
}
