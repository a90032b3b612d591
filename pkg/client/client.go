// Package client provides the resilient catalog API client: request pacing,
// concurrency limiting, failure classification, and retry with backoff are
// composed into one request primitive.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudscan/catalog-scanner/pkg/ratelimit"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog request errors by kind",
	}, []string{"kind"})
)

// Config holds the client configuration. It is immutable after New.
type Config struct {
	// BaseURL is the catalog API root, e.g. "http://localhost:8000".
	BaseURL string

	// APIKey is the static credential sent in the api-key header.
	APIKey string

	// MaxConcurrentRequests bounds in-flight requests (default 5).
	MaxConcurrentRequests int

	// MaxRequestsPerSecond bounds dispatch rate (default 0.8).
	MaxRequestsPerSecond float64

	// Retry is the retry policy applied to every request.
	Retry RetryPolicy
}

// DefaultConfig returns a safe default configuration for the given API.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:               baseURL,
		APIKey:                apiKey,
		MaxConcurrentRequests: 5,
		MaxRequestsPerSecond:  0.8,
		Retry:                 DefaultRetryPolicy(),
	}
}

// Client executes catalog API requests. Every request pays the rate limiter
// and the concurrency gate on every attempt, including retries.
type Client struct {
	config  Config
	limiter *ratelimit.Limiter
	gate    *ratelimit.Gate
	logger  zerolog.Logger

	mu      sync.Mutex
	session *http.Client
}

// New creates a catalog client. Zero values for the concurrency and rate
// budgets fall back to the defaults; negative values are rejected.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = 5
	}
	if cfg.MaxConcurrentRequests < 1 {
		return nil, fmt.Errorf("max_concurrent_requests must be >= 1 (got %d)", cfg.MaxConcurrentRequests)
	}

	if cfg.MaxRequestsPerSecond == 0 {
		cfg.MaxRequestsPerSecond = 0.8
	}
	if cfg.MaxRequestsPerSecond < 0 {
		return nil, fmt.Errorf("max_requests_per_second must be > 0 (got %g)", cfg.MaxRequestsPerSecond)
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	logger := log.With().Str("component", "catalog-client").Logger()

	return &Client{
		config:  cfg,
		limiter: ratelimit.NewLimiter(cfg.MaxRequestsPerSecond, logger),
		gate:    ratelimit.NewGate(cfg.MaxConcurrentRequests),
		logger:  logger,
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// httpSession returns the underlying HTTP session, creating it lazily. A
// session released by Close is transparently re-created on the next request.
func (c *Client) httpSession() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.session = &http.Client{
			Timeout: 30 * time.Second,
		}
		c.logger.Info().
			Str("base_url", c.config.BaseURL).
			Float64("max_rps", c.config.MaxRequestsPerSecond).
			Int("max_concurrent", c.config.MaxConcurrentRequests).
			Msg("Session initialized")
	}
	return c.session
}

// Close releases the HTTP session. Close is idempotent; a subsequent request
// re-initializes the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.CloseIdleConnections()
		c.session = nil
		c.logger.Info().Msg("Session closed")
	}
	return nil
}

// SetHTTPClient replaces the HTTP session (for testing).
func (c *Client) SetHTTPClient(session *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// Get performs a GET against the endpoint with retry, pacing, and
// concurrency limiting, and returns the response body. Terminal errors
// (auth, not-found) propagate after a single attempt; retryable errors are
// retried per the policy and surface wrapped in ErrRetryBudgetExhausted once
// the budget is spent.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var lastErr error

	for attempt := 1; attempt <= c.config.Retry.MaxAttempts; attempt++ {
		body, err := c.attempt(ctx, endpoint, params, attempt)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return body, nil
		}
		lastErr = err

		delay, retry := c.config.Retry.Decide(err, attempt)
		if !retry {
			if Retryable(err) {
				break // budget exhausted
			}
			return nil, err // terminal, propagate as classified
		}

		kind := errorKind(err)
		retriesTotal.WithLabelValues(string(kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())

		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	kind := errorKind(lastErr)
	retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("kind", string(kind)).
		Int("max_attempts", c.config.Retry.MaxAttempts).
		Msg("Retry budget exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryBudgetExhausted, c.config.Retry.MaxAttempts, lastErr)
}

// attempt performs one paced, gated transport call.
func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values, attempt int) ([]byte, error) {
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("attempt", attempt).
		Msg("Executing catalog request")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("api-key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpSession().Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(KindTransport)).Inc()
		requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Transport call failed")
		return nil, &APIError{
			Kind:     KindTransport,
			Endpoint: endpoint,
			Message:  err.Error(),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		kind := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(kind)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("kind", string(kind)).
			Msg("Catalog request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       kind,
			Endpoint:   endpoint,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(KindTransport)).Inc()
		return nil, &APIError{
			Kind:     KindTransport,
			Endpoint: endpoint,
			Message:  "read response body",
			Err:      err,
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Catalog request succeeded")

	return body, nil
}

// errorKind extracts the classification from a request error.
func errorKind(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransport
}
