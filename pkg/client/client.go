// Package client provides the GraphQL HTTP client used to query subgraph
// endpoints, with retries, an optional Redis response cache and a shared
// per-endpoint error budget.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/cache"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for subgraph client operations.
var (
	subgraphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_requests_total",
		Help: "Total subgraph requests by endpoint scope and status",
	}, []string{"scope", "status"})

	subgraphRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subgraph_request_duration_seconds",
		Help:    "Subgraph request duration in seconds by endpoint scope",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"scope"})

	subgraphErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_errors_total",
		Help: "Total subgraph errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses from the gateway.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassQuery represents GraphQL errors in a 200 response.
	ErrorClassQuery ErrorClass = "query"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`

	// Cached is true when the response was served from Redis.
	Cached bool `json:"-"`
}

// HasData reports whether the response carries a non-null data object.
func (r *Response) HasData() bool {
	return r != nil && len(r.Data) > 0 && string(r.Data) != "null"
}

// Client is the subgraph GraphQL client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	retry       retryPolicy
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis enables the response cache and the shared error budget.
	// Both are disabled when nil.
	Redis *redis.Client

	// User-Agent header sent with every request
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// CacheTTL applies when the endpoint sends no caching headers.
	// Zero or negative disables caching.
	CacheTTL time.Duration

	// Retry overrides; zero keeps the per-class defaults
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:          redis,
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		CacheTTL:       cache.DefaultTTL,
		MaxRetries:     0,
		InitialBackoff: 0,
	}
}

// New creates a new subgraph client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentClient)

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
	}
	c.retry = c.retryConfigFor

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		if cfg.CacheTTL > 0 {
			m, err := cache.NewManager(cfg.Redis, cache.Options{})
			if err != nil {
				return nil, fmt.Errorf("create cache: %w", err)
			}
			c.cache = m
		}
	}

	return c, nil
}

func (c *Client) retryConfigFor(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	if c.config.MaxRetries > 0 {
		rc.MaxAttempts = c.config.MaxRetries + 1
	}
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// Query posts a GraphQL request to endpoint.
//
// GraphQL errors are reported as *QueryError together with the decoded
// response, which may still carry partial data.
func (c *Client) Query(ctx context.Context, endpoint string, req Request) (*Response, error) {
	scope := ratelimit.Scope(endpoint)

	startTime := time.Now()
	defer func() {
		subgraphRequestDuration.WithLabelValues(scope).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, scope)
		if err != nil {
			// a Redis outage must not take the dashboard down with it
			c.logger.Warn().Err(err).Str("scope", scope).Msg("Error budget check failed")
		} else if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by error budget")
			subgraphRequestsTotal.WithLabelValues(scope, "blocked").Inc()
			return nil, ErrRequestBlocked
		}
	}

	cacheKey := cache.CacheKey{
		Endpoint:  endpoint,
		Query:     req.Query,
		Variables: req.Variables,
	}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var resp Response
			if jsonErr := json.Unmarshal(entry.Body, &resp); jsonErr == nil {
				resp.Cached = true
				subgraphRequestsTotal.WithLabelValues(scope, "cache_hit").Inc()
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("age", entry.Age(time.Now())).
					Msg("Served from cache")
				return &resp, nil
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Interface("variables", req.Variables).
		Msg("Executing subgraph query")

	var (
		raw      []byte
		httpResp *http.Response
		errClass ErrorClass
	)

	retryErr := retryWithPolicy(ctx, c.retry, func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if reqErr != nil {
			errClass = ErrorClassClient
			return fmt.Errorf("create request: %w", reqErr)
		}
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			errClass = c.classifyError(nil, doErr)
			subgraphErrorsTotal.WithLabelValues(string(errClass)).Inc()
			subgraphRequestsTotal.WithLabelValues(scope, "network_error").Inc()
			c.recordFailure(ctx, scope, 0, nil)
			c.logger.Error().Err(doErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return doErr
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			errClass = ErrorClassNetwork
			subgraphErrorsTotal.WithLabelValues(string(errClass)).Inc()
			return fmt.Errorf("read response body: %w", readErr)
		}

		subgraphRequestsTotal.WithLabelValues(scope, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			errClass = c.classifyError(resp, nil)
			subgraphErrorsTotal.WithLabelValues(string(errClass)).Inc()
			c.recordFailure(ctx, scope, resp.StatusCode, resp.Header)

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Subgraph request error")

			// graph-node answers invalid queries with 400 and a GraphQL body
			if errClass == ErrorClassClient && looksLikeGraphQL(data) {
				raw, httpResp = data, resp
				return nil
			}

			return &SubgraphError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
		}

		raw, httpResp = data, resp
		return nil
	}, func(error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(retryErr, ErrContextCancelled) {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctxErr)
		}
		return nil, retryErr
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		subgraphErrorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		return nil, &SubgraphError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "invalid GraphQL response",
			Err:        err,
		}
	}

	if len(out.Errors) > 0 {
		subgraphErrorsTotal.WithLabelValues(string(ErrorClassQuery)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("errors", len(out.Errors)).
			Msg("GraphQL errors in response")
		return &out, &QueryError{Endpoint: endpoint, Errors: out.Errors}
	}

	if c.cache != nil && httpResp.StatusCode == http.StatusOK {
		entry := cache.NewEntry(endpoint, httpResp.Header, raw, c.config.CacheTTL, time.Now())
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
		}
	}

	return &out, nil
}

func (c *Client) recordFailure(ctx context.Context, scope string, status int, header http.Header) {
	if c.rateLimiter == nil {
		return
	}
	if header == nil {
		header = http.Header{}
	}
	if err := c.rateLimiter.RecordResponse(ctx, scope, status, header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update error budget")
	}
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func looksLikeGraphQL(body []byte) bool {
	var probe struct {
		Errors []GraphQLError `json:"errors"`
	}
	return json.Unmarshal(body, &probe) == nil && len(probe.Errors) > 0
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Purge drops every cached response of endpoint. It is a no-op when
// caching is disabled.
func (c *Client) Purge(ctx context.Context, endpoint string) (int64, error) {
	if c.cache == nil {
		return 0, nil
	}
	return c.cache.Purge(ctx, endpoint)
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
