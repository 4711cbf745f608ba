// Package client talks to an agentwatch server over its HTTP and WebSocket
// API. Requests that fail transiently are retried according to a RetryPolicy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/agentwatch/internal/types"
)

const DefaultTimeout = 5 * time.Second

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Client is an agentwatch API client.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *RetryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) {
		if p != nil {
			c.retry = p
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a Client for the server at baseURL, e.g. http://localhost:4000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks the server once without retrying.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	if h.Status != "ok" {
		return nil, fmt.Errorf("server unhealthy: status %q", h.Status)
	}
	return &h, nil
}

// Submit posts an event candidate and returns the stored event. A timed out
// or reset request is not resent, since the server may already have stored it.
func (c *Client) Submit(ctx context.Context, candidate any) (*types.Event, error) {
	body, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var event types.Event
	err = c.retry.ExecuteOnce(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/events", body, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Recent returns up to limit recent events. A limit of zero uses the server default.
func (c *Client) Recent(ctx context.Context, limit int) ([]*types.Event, error) {
	path := "/events/recent"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var events []*types.Event
	err := c.retry.Execute(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, &events)
	})
	return events, err
}

// FilterOptions returns the distinct filter values on the server.
func (c *Client) FilterOptions(ctx context.Context) (*types.FilterOptions, error) {
	var opts types.FilterOptions
	err := c.retry.Execute(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/events/filter-options", nil, &opts)
	})
	if err != nil {
		return nil, err
	}
	return &opts, nil
}

// Count returns the number of stored events.
func (c *Client) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.retry.Execute(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/events/count", nil, &resp)
	})
	return resp.Count, err
}

// Clear deletes every stored event.
func (c *Client) Clear(ctx context.Context) error {
	return c.retry.Execute(ctx, func() error {
		return c.do(ctx, http.MethodDelete, "/events", nil, nil)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(data, &errBody)
		return &StatusError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
