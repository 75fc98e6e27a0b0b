package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

// HTTPClient is the default Client implementation for HTTP endpoints.
// The endpoint string is used verbatim as the request URL.
type HTTPClient struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewHTTPClient creates an HTTP transport. The per-request timeout is
// supplied on each Get call, not here, so one client can serve callers
// with different deadlines.
func NewHTTPClient() *HTTPClient {
	client := resty.New().
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		client: client,
		logger: log.With().Str("component", "transport").Logger(),
	}
}

// Get fetches the endpoint and returns the raw response body. Non-2xx
// responses are returned as errors; the aggregator treats all transport
// errors uniformly, so no retryability classification happens here.
func (c *HTTPClient) Get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(reqCtx).
		Get(endpoint)
	if err != nil {
		c.logger.Debug().
			Str("endpoint", endpoint).
			Err(err).
			Msg("HTTP request failed")
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}

	if !resp.IsSuccess() {
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode()).
			Msg("HTTP request returned non-success status")
		return nil, fmt.Errorf("get %s: status %d", endpoint, resp.StatusCode())
	}

	return resp.Bytes(), nil
}

// Close releases the underlying HTTP client resources.
func (c *HTTPClient) Close() error {
	return c.client.Close()
}
