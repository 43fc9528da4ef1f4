// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the FlaiChat backend.
//
// Every REST response is wrapped in a {code, message, data} envelope; a
// non-zero code becomes an *Error. Message generation is streamed back as
// "data: <json>" lines and read through an EventReader.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is where the backend listens in a default deployment.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond is the default client-side request rate.
	DefaultRequestsPerSecond = 10

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

var (
	// Shared HTTP client with connection pooling for all REST requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	AccessToken() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// AccessToken implements TokenSource.
func (f TokenFunc) AccessToken() string { return f() }

// envelope is the wrapper of every REST response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the FlaiChat backend. It is safe for concurrent use once
// configured.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	tokens       TokenSource
	limiter      *rate.Limiter
	logger       *slog.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		limiter:      rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		logger:       slog.New(slog.DiscardHandler),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// WithHTTPClient replaces both the REST and streaming HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithTimeout sets the timeout of non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	hc := *c.httpClient
	hc.Timeout = timeout
	c.httpClient = &hc
	return c
}

// WithRateLimit sets the client-side request rate. Zero or negative disables
// limiting.
func (c *Client) WithRateLimit(perSecond float64) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithTokenSource sets where bearer tokens come from.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

// WithLogger sets the logger for request tracing.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// OnUnauthorized registers fn to run whenever the backend reports the
// session as invalid. It replaces any earlier hook.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any, auth bool) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if auth && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return networkError(err)
	}
	return nil
}

// do performs a REST call and decodes the envelope's data into out (which
// may be nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, auth bool) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, query, body, auth)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", method, "path", path, "error", err)
		return networkError(err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api response", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized()
		}
		return statusError(resp.StatusCode)
	}

	raw, err := readResponse(resp.Body)
	if err != nil {
		return networkError(err)
	}
	return c.decodeEnvelope(raw, out)
}

func (c *Client) decodeEnvelope(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return networkError(fmt.Errorf("failed to parse response: %w", err))
	}

	if env.Code != 0 {
		if env.Code == CodeUnauthorized {
			c.unauthorized()
			return &Error{Code: env.Code, Message: "Unauthorized"}
		}
		msg := env.Message
		if msg == "" {
			msg = "Unknown API Error"
		}
		return &Error{Code: env.Code, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return networkError(fmt.Errorf("failed to parse response data: %w", err))
	}
	return nil
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(body io.Reader) ([]byte, error) {
	limitedReader := io.LimitReader(body, MaxResponseSize+1)
	raw, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(raw)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return raw, nil
}
