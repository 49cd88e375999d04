package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/logging"
)

// maxResponseSize caps the response body read from a backend.
const maxResponseSize = 10 * 1024 * 1024

// defaultHTTPTimeout allows for slow generations.
const defaultHTTPTimeout = 180 * time.Second

// Config selects the adapter and endpoint for a Client.
type Config struct {
	// Provider is the adapter name: openai, ollama, or anthropic.
	Provider string

	// BaseURL overrides the backend's default endpoint. Empty keeps the
	// adapter's well-known default.
	BaseURL string

	// Model is the default model for requests that do not name one.
	Model string

	// APIKey is passed to the adapter; empty falls back to the
	// adapter's environment variable.
	APIKey string

	// Timeout bounds one HTTP round trip. Zero selects the default.
	Timeout time.Duration

	// Retry controls transient-failure retries. The zero value selects
	// DefaultRetryConfig.
	Retry RetryConfig
}

// Client sends chat completions through one configured adapter, retrying
// transient failures with exponential backoff.
type Client struct {
	adapter Adapter
	cfg     Config
	http    *http.Client
	log     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, primarily for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger replaces the component logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.log = logger }
}

// NewClient builds a Client for cfg.Provider using the registry's
// adapters. Returns ErrNotFound when no adapter carries that name.
func NewClient(reg *Registry, cfg Config, opts ...ClientOption) (*Client, error) {
	adapter, err := reg.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	c := &Client{
		adapter: adapter,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logging.New("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Adapter returns the adapter the client was built with.
func (c *Client) Adapter() Adapter {
	return c.adapter
}

// Model returns the configured default model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ChatCompletion sends req and returns the parsed response. Transient
// failures are retried per the retry config; fatal errors and context
// cancellation stop immediately.
func (c *Client) ChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if IsFatal(err) {
			return nil, err
		}
		if attempt < c.cfg.Retry.MaxAttempts {
			backoff := c.backoff(attempt)
			c.log.Debug("completion failed, retrying",
				"attempt", attempt,
				"max_attempts", c.cfg.Retry.MaxAttempts,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("provider %s: all attempts failed: %w", c.adapter.Name(), lastErr)
}

// CountTokens asks the backend for the request's exact input token
// count. Returns ErrUnsupported when the adapter has no counting
// endpoint.
func (c *Client) CountTokens(ctx context.Context, req *Request) (int, error) {
	counter, ok := c.adapter.(TokenCounter)
	if !ok {
		return 0, fmt.Errorf("%w: %s cannot count tokens", ErrUnsupported, c.adapter.Name())
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	body, err := counter.BuildCountTokensBody(req)
	if err != nil {
		return 0, fmt.Errorf("build count request: %w", err)
	}
	respBody, err := c.post(ctx, counter.BuildCountTokensURL(c.cfg.BaseURL), body)
	if err != nil {
		return 0, err
	}
	return counter.ParseCountTokensResponse(respBody)
}

// Models lists the model identifiers the backend advertises. Returns
// ErrUnsupported when the adapter has no listing endpoint.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	lister, ok := c.adapter.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot list models", ErrUnsupported, c.adapter.Name())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lister.BuildModelsURL(c.cfg.BaseURL), nil)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	c.adapter.SetHeaders(httpReq, c.cfg.APIKey)
	respBody, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	return lister.ParseModelsResponse(respBody)
}

// doRequest executes a single completion round trip.
func (c *Client) doRequest(ctx context.Context, req *Request) (*Response, error) {
	body, err := c.adapter.BuildRequestBody(req)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}
	url := c.adapter.BuildURL(c.cfg.BaseURL)

	c.log.Debug("sending completion request",
		"provider", c.adapter.Name(),
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools))

	respBody, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return c.adapter.ParseResponse(respBody)
}

// post sends a JSON POST and returns the response body, classifying
// failures as transient or fatal.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.adapter.SetHeaders(httpReq, c.cfg.APIKey)
	return c.send(httpReq)
}

func (c *Client) send(httpReq *http.Request) ([]byte, error) {
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Network errors are transient.
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// backoff computes the exponential delay for a retry with jitter, so
// simultaneous clients do not synchronize their retries.
func (c *Client) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.cfg.Retry.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.cfg.Retry.BackoffBase) * multiplier)
	if backoff > c.cfg.Retry.MaxBackoff {
		backoff = c.cfg.Retry.MaxBackoff
	}
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// classifyHTTPError sorts an HTTP failure into transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
