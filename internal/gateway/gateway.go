// Package gateway exposes the service desk API on a local address, attaching
// the stored session to every forwarded request.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/florianilch/deskclient/internal/authclient"
)

// Gateway is a local reverse proxy in front of the service desk API.
type Gateway struct {
	client *authclient.Client
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Gateway implements http.Handler
var _ http.Handler = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	metrics   http.Handler
	rateLimit float64
	burst     int
	logger    *slog.Logger
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *gatewayConfig) {
		c.metrics = h
	}
}

// WithRateLimit limits forwarded requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *gatewayConfig) {
		c.rateLimit = rps
		c.burst = burst
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *gatewayConfig) {
		c.logger = logger
	}
}

// New creates a gateway forwarding every path below / to the client's base URL.
func New(client *authclient.Client, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("missing API client")
	}

	cfg := &gatewayConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream := client.BaseURL()

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Header = filterHeaders(pr.Out.Header)
		},
		Transport:    client.Transport(),
		ErrorHandler: proxyErrorHandler,
	}

	g := &Gateway{client: client}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("GET /session", g.handleSession)
	if cfg.metrics != nil {
		mux.Handle("GET /metrics", cfg.metrics)
	}
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Logging(cfg.logger),
		Recovery,
		RateLimit(cfg.rateLimit, cfg.burst),
	))
	g.mux = mux

	return g, nil
}

// ServeHTTP implements http.Handler interface
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

// SessionResponse is the body of GET /session.
type SessionResponse struct {
	State authclient.SessionState `json:"state"`
}

func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, SessionResponse{State: g.client.State(r.Context())}, http.StatusOK)
}

// proxyErrorHandler maps transport failures to JSON responses.
func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if authclient.IsSessionExpired(err) {
		writeJSONError(ctx, w, "session expired", http.StatusUnauthorized)
		return
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to send
		slog.DebugContext(ctx, "request canceled", "path", r.URL.Path)
		return
	}
	slog.ErrorContext(ctx, "upstream request failed", "path", r.URL.Path, "error", err)
	writeJSONError(ctx, w, "upstream unavailable", http.StatusBadGateway)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (g *Gateway) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	g.server = &http.Server{
		Handler:      g,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // covers a queued request waiting out a refresh
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := g.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	if err := g.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = g.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
