package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/deskclient/internal/authclient"
	"github.com/florianilch/deskclient/internal/gateway"
	"github.com/florianilch/deskclient/internal/servicedesk"
	"github.com/florianilch/deskclient/internal/tokenstore"
)

// App wires the session store, the authenticated client and the services on top.
type App struct {
	cfg      *Config
	storage  *storage
	registry *prometheus.Registry
	notifier *ShellNotifier
	client   *authclient.Client
	desk     *servicedesk.Client
	gateway  *gateway.Gateway
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	noticeOutput io.Writer
}

// WithNoticeOutput sets where user-facing notices are printed. Defaults to stderr.
func WithNoticeOutput(w io.Writer) Option {
	return func(o *appOptions) {
		o.noticeOutput = w
	}
}

// New creates a new App instance. No I/O is performed against the API.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &appOptions{noticeOutput: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	st, err := cfg.Auth.newStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	notifier := NewShellNotifier(o.noticeOutput)

	clientOpts := []authclient.Option{
		authclient.WithNotifier(notifier),
		authclient.WithLoginActive(notifier.LoginActive),
		authclient.WithMetrics(authclient.NewMetrics(registry)),
		authclient.WithEndpoints(cfg.Auth.Endpoints()),
		authclient.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		authclient.WithTimeout(cfg.API.Timeout),
	}
	if st.locker != nil {
		clientOpts = append(clientOpts, authclient.WithLocker(st.locker))
	}

	client, err := authclient.New(cfg.API.BaseURL, st.store, clientOpts...)
	if err != nil {
		_ = st.close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	gw, err := gateway.New(client,
		gateway.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		gateway.WithRateLimit(cfg.Gateway.RateLimit, cfg.Gateway.RateBurst),
	)
	if err != nil {
		_ = st.close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &App{
		cfg:      cfg,
		storage:  st,
		registry: registry,
		notifier: notifier,
		client:   client,
		desk:     servicedesk.New(client),
		gateway:  gw,
	}, nil
}

// Close releases connections held by the token store.
func (a *App) Close() error {
	return a.storage.close()
}

// Login starts a session with the given credentials.
func (a *App) Login(ctx context.Context, username, password string) error {
	done := a.notifier.beginLogin()
	defer done()

	if err := a.client.Login(ctx, username, password); err != nil {
		return err
	}
	return nil
}

// Logout ends the current session.
func (a *App) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Status describes the stored session.
type Status struct {
	State       authclient.SessionState `json:"state"`
	Refreshable bool                    `json:"refreshable"`
	Subject     string                  `json:"subject,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
}

// Status reports the session state. Subject and expiry are read from the
// access token when it is a JWT; the signature is not verified.
func (a *App) Status(ctx context.Context) (*Status, error) {
	status := &Status{State: a.client.State(ctx)}

	tokens, err := a.client.Tokens(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	status.Refreshable = tokens.RefreshToken != ""

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.AccessToken, claims); err != nil {
		slog.DebugContext(ctx, "access token is not a JWT", "error", err)
		return status, nil
	}
	if sub, err := claims.GetSubject(); err == nil {
		status.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		status.ExpiresAt = &t
	}
	return status, nil
}

// Fetch returns a resource listing, or a single item when id is set.
func (a *App) Fetch(ctx context.Context, resource, id string, query url.Values) (json.RawMessage, error) {
	r, err := servicedesk.ParseResource(resource)
	if err != nil {
		return nil, err
	}
	if id != "" {
		return a.desk.Get(ctx, r, id)
	}
	return a.desk.List(ctx, r, query)
}

// Start starts the gateway and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Gateway.Host + ":" + strconv.FormatUint(uint64(a.cfg.Gateway.Port), 10)
	var shutdownFuncs []func(context.Context) error

	shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return a.Close() })

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway", "address", address, "upstream", a.client.BaseURL().String())
	gatewayErrCh, err := a.gateway.Start(gCtx, address)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.gateway.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-gatewayErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address, "session", a.client.State(gCtx).String())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
