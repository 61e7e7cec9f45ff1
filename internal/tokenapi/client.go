// Package tokenapi is the HTTP client for the token data service.
package tokenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 0
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrNotFound is returned when the service has no record for the request.
var ErrNotFound = errors.New("token not found")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// HTTPClient pulls token data over plain HTTP GETs.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transport failures and 5xx/429.
// The default performs a single attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listResponse is the body of GET /api/tokens.
type listResponse struct {
	Tokens     []domain.Token `json:"tokens"`
	TotalPages int            `json:"totalPages"`
}

// ListTokens fetches one sorted page.
func (c *HTTPClient) ListTokens(ctx context.Context, q domain.ListQuery) (*domain.TokenListPage, error) {
	params := url.Values{}
	for k, v := range q.Values() {
		params.Set(k, v)
	}

	var resp listResponse
	if err := c.get(ctx, "list", "/api/tokens", params, &resp); err != nil {
		return nil, err
	}

	return &domain.TokenListPage{
		Tokens:     resp.Tokens,
		Query:      q,
		TotalPages: resp.TotalPages,
	}, nil
}

// GetToken fetches the full record of one token.
// Returns ErrNotFound for 404 or an empty body.
func (c *HTTPClient) GetToken(ctx context.Context, contractAddress string) (*domain.Token, error) {
	var tok *domain.Token
	path := "/api/tokens/" + url.PathEscape(contractAddress)
	if err := c.get(ctx, "detail", path, nil, &tok); err != nil {
		return nil, err
	}
	if tok == nil || tok.ContractAddress == "" {
		return nil, ErrNotFound
	}
	return tok, nil
}

// GlobalTopTokens fetches the leaderboard.
func (c *HTTPClient) GlobalTopTokens(ctx context.Context) (*domain.Leaderboard, error) {
	var lb domain.Leaderboard
	if err := c.get(ctx, "leaderboard", "/api/global-top-tokens", nil, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// get performs a GET with optional retries and exponential backoff.
func (c *HTTPClient) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordPullLatency(endpoint, time.Since(start).Seconds(), err)
	}()

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		body, retry, err := c.do(ctx, target)
		if err != nil {
			if !retry {
				return err
			}
			lastErr = err
			continue
		}

		if result != nil && len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	if c.maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do executes one request. The bool reports whether the failure is retryable.
func (c *HTTPClient) do(ctx context.Context, target string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &StatusError{Code: resp.StatusCode, Body: "rate limited"}
	case resp.StatusCode >= 500:
		return nil, true, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode != http.StatusOK:
		return nil, false, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, false, nil
}
