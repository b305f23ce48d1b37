package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
	"github.com/conduit-mcp/conduit/internal/domain/security"
	"github.com/conduit-mcp/conduit/internal/domain/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPTransport is the inbound adapter that exposes the gateway over HTTP:
// the streamable transport on /mcp, the push-stream transport on /sse, plus
// /health, /metrics, and a favicon stub.
type HTTPTransport struct {
	validator *security.Validator
	limiter   ratelimit.Limiter
	sessions  *session.Manager
	binder    Binder

	addr        string
	limit       int
	window      time.Duration
	evictOnFull bool
	keyCount    func() int

	server  *http.Server
	streams *streamRegistry
	metrics *Metrics
	logger  *slog.Logger
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithRateLimit sets the per-identity admission rate: count per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(t *HTTPTransport) {
		t.limit = limit
		t.window = window
	}
}

// WithEvictOnFull selects the at-capacity policy for session creation:
// evict the least-recently-active session (true) or reject the new caller
// with 503 (false, the default).
func WithEvictOnFull(evict bool) Option {
	return func(t *HTTPTransport) {
		t.evictOnFull = evict
	}
}

// WithLimiterKeyCount wires a gauge source for the number of tracked rate
// limit keys. Optional; the gauge is omitted when unset.
func WithLimiterKeyCount(count func() int) Option {
	return func(t *HTTPTransport) {
		t.keyCount = count
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// NewHTTPTransport creates the HTTP transport over the given components.
func NewHTTPTransport(
	validator *security.Validator,
	limiter ratelimit.Limiter,
	sessions *session.Manager,
	binder Binder,
	opts ...Option,
) *HTTPTransport {
	t := &HTTPTransport{
		validator: validator,
		limiter:   limiter,
		sessions:  sessions,
		binder:    binder,
		addr:      "127.0.0.1:8080",
		limit:     100,
		window:    time.Minute,
		streams:   newStreamRegistry(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or the server fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var limiterKeys func() float64
	if t.keyCount != nil {
		count := t.keyCount
		limiterKeys = func() float64 { return float64(count()) }
	}
	t.metrics = NewMetrics(reg, func() float64 { return float64(t.sessions.Len()) }, limiterKeys)

	rt := newRouter(t.validator, t.limiter, t.sessions, t.binder, routerConfig{
		Limit:       t.limit,
		Window:      t.window,
		EvictOnFull: t.evictOnFull,
	}, t.metrics, t.logger)

	streamable := http.Handler(newStreamableTransport(rt, t.streams))
	sse := http.Handler(newSSETransport(rt, t.streams))

	// Middleware order (outermost first): metrics capture the full
	// duration, then request id, then client IP resolution. The security
	// validator runs inside the router, not as middleware, because its
	// verdict depends on the resolved session id.
	chain := func(h http.Handler) http.Handler {
		h = RealIPMiddleware(h)
		h = RequestIDMiddleware(t.logger)(h)
		h = MetricsMiddleware(t.metrics)(h)
		return h
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", chain(streamable))
	mux.Handle("/mcp/", chain(streamable))
	mux.Handle("/sse", chain(sse))
	mux.Handle("/sse/", chain(sse))
	mux.Handle("/health", NewHealthChecker(t.sessions, "http").Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	// Favicon stub to keep browser probes out of the error logs.
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)

	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		err := t.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close push streams first so SSE loops unblock and let Shutdown drain.
	t.streams.closeAll()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
