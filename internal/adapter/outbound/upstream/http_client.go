// Package upstream provides the per-session forwarder that carries JSON-RPC
// payloads to the backend MCP server. One Client is bound to each gateway
// session; its lifecycle is owned by the session registry.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/conduit-mcp/conduit/internal/domain/session"
)

// sessionIDHeader carries the upstream's own session identifier. The
// upstream session is distinct from the gateway session: the gateway keeps
// the mapping so clients never see upstream ids.
const sessionIDHeader = "Mcp-Session-Id"

// maxResponseBodySize caps response bodies read from upstream. Prevents OOM
// from a misbehaving upstream sending unbounded output.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// defaultTimeout is the default per-request timeout against the upstream.
const defaultTimeout = 30 * time.Second

// ErrClosed is returned by Handle after Close.
var ErrClosed = errors.New("upstream client closed")

// Client forwards one session's JSON-RPC traffic to an upstream MCP server
// over HTTP. Implements session.Handler.
type Client struct {
	endpoint   string
	httpClient *http.Client

	mu         sync.Mutex
	upstreamID string // upstream's Mcp-Session-Id, learned from responses
	closed     bool
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a forwarder bound to the given upstream endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle forwards one payload and returns the upstream's response body.
func (c *Client) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	upstreamID := c.upstreamID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if upstreamID != "" {
		req.Header.Set(sessionIDHeader, upstreamID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if sid := resp.Header.Get(sessionIDHeader); sid != "" {
		c.mu.Lock()
		c.upstreamID = sid
		c.mu.Unlock()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return body, nil
}

// Close terminates the forwarder. When an upstream session was established,
// a best-effort DELETE tells the upstream to drop it. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	upstreamID := c.upstreamID
	c.mu.Unlock()

	if upstreamID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set(sessionIDHeader, upstreamID)
	resp, err := c.httpClient.Do(req)
	if err == nil {
		_ = resp.Body.Close()
	}
	return nil
}

// Binder creates one forwarder per new session, all pointing at the same
// upstream endpoint. Satisfies the transport router's session binder hook.
type Binder struct {
	endpoint string
	opts     []Option
}

// NewBinder creates a Binder for the upstream endpoint.
func NewBinder(endpoint string, opts ...Option) *Binder {
	return &Binder{endpoint: endpoint, opts: opts}
}

// Bind returns a fresh handler for a new session.
func (b *Binder) Bind(ctx context.Context) (session.Handler, error) {
	return NewClient(b.endpoint, b.opts...), nil
}

// Compile-time interface verification.
var _ session.Handler = (*Client)(nil)
