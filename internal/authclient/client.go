package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/deskclient/internal/tokensource"
	"github.com/florianilch/deskclient/internal/tokenstore"
)

// Default values for client options.
const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultTimeout        = 30 * time.Second
)

// Endpoints holds the auth endpoint paths relative to the API base URL.
type Endpoints struct {
	Login   string
	Refresh string
	Logout  string
}

// DefaultEndpoints are the auth endpoints of the service desk API.
var DefaultEndpoints = Endpoints{
	Login:   "/auth/login",
	Refresh: "/auth/refresh",
	Logout:  "/auth/logout",
}

// Authenticator performs the login and refresh token exchanges.
type Authenticator interface {
	Refresher
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)
}

// SessionState is the lifecycle state of the client's session.
type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAuthenticated
	StateRefreshPending
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshPending:
		return "refresh_pending"
	default:
		return "anonymous"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "anonymous":
		*s = StateAnonymous
	case "authenticated":
		*s = StateAuthenticated
	case "refresh_pending":
		*s = StateRefreshPending
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseTransport  http.RoundTripper
	authenticator  Authenticator
	notifier       Notifier
	locker         tokenstore.Locker
	metrics        *Metrics
	endpoints      Endpoints
	refreshTimeout time.Duration
	timeout        time.Duration
	loginActive    func() bool
}

// WithBaseTransport sets the transport that carries the actual requests.
// If not provided, http.DefaultTransport is used.
func WithBaseTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithAuthenticator replaces the default tokensource.Exchanger.
func WithAuthenticator(a Authenticator) Option {
	return func(c *clientConfig) {
		c.authenticator = a
	}
}

// WithNotifier sets the receiver of user-facing events.
func WithNotifier(n Notifier) Option {
	return func(c *clientConfig) {
		c.notifier = n
	}
}

// WithLocker serializes refreshes with other processes sharing the store.
func WithLocker(l tokenstore.Locker) Option {
	return func(c *clientConfig) {
		c.locker = l
	}
}

// WithMetrics records refresh activity.
func WithMetrics(m *Metrics) Option {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithEndpoints overrides the auth endpoint paths.
func WithEndpoints(e Endpoints) Option {
	return func(c *clientConfig) {
		c.endpoints = e
	}
}

// WithRefreshTimeout bounds a refresh, including waiting for the shared lock.
// A refresh that times out ends the session.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.refreshTimeout = d
	}
}

// WithTimeout sets the overall timeout of requests made through the client.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithLoginActive reports whether the user is currently in the login flow.
// Session-expired and forbidden notices are suppressed while it returns true.
func WithLoginActive(f func() bool) Option {
	return func(c *clientConfig) {
		c.loginActive = f
	}
}

// Client is an HTTP client for the service desk API with session handling.
type Client struct {
	baseURL    *url.URL
	endpoints  Endpoints
	store      tokenstore.TokenStore
	auth       Authenticator
	transport  *Transport
	httpClient *http.Client
}

// New creates a Client for the API at baseURL keeping its session in store.
// No I/O is performed.
func New(baseURL string, store tokenstore.TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}

	cfg := &clientConfig{
		baseTransport:  http.DefaultTransport,
		notifier:       discardNotifier{},
		endpoints:      DefaultEndpoints,
		refreshTimeout: DefaultRefreshTimeout,
		timeout:        DefaultTimeout,
		loginActive:    func() bool { return false },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.authenticator == nil {
		ex, err := tokensource.NewExchanger(tokensource.Endpoint{
			LoginURL:   base.JoinPath(cfg.endpoints.Login).String(),
			RefreshURL: base.JoinPath(cfg.endpoints.Refresh).String(),
		}, tokensource.WithTransport(cfg.baseTransport), tokensource.WithTimeout(cfg.timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to create token exchanger: %w", err)
		}
		cfg.authenticator = ex
	}

	transport := &Transport{
		base:           cfg.baseTransport,
		store:          store,
		refresher:      cfg.authenticator,
		locker:         cfg.locker,
		notifier:       cfg.notifier,
		metrics:        cfg.metrics,
		refreshTimeout: cfg.refreshTimeout,
		loginActive:    cfg.loginActive,
		exempt: map[string]bool{
			base.JoinPath(cfg.endpoints.Login).Path:   true,
			base.JoinPath(cfg.endpoints.Refresh).Path: true,
			base.JoinPath(cfg.endpoints.Logout).Path:  true,
		},
	}

	return &Client{
		baseURL:   base,
		endpoints: cfg.endpoints,
		store:     store,
		auth:      cfg.authenticator,
		transport: transport,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: transport,
		},
	}, nil
}

// Transport returns the client's authenticating round tripper.
func (c *Client) Transport() *Transport {
	return c.transport
}

// BaseURL returns a copy of the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Login exchanges credentials for a session and stores both tokens.
// Errors from the login endpoint (e.g. 401 for bad credentials) are returned
// as is; no refresh is attempted.
func (c *Client) Login(ctx context.Context, username, password string) error {
	tok, err := c.auth.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	tokens := tokenstore.Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if err := c.store.Write(ctx, tokens); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	c.transport.startSession(tok.AccessToken)
	slog.InfoContext(ctx, "logged in", "refreshable", tok.RefreshToken != "")
	return nil
}

// Logout ends the session. The server is told on a best-effort basis; the
// local session is removed regardless.
func (c *Client) Logout(ctx context.Context) error {
	tokens, err := c.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return fmt.Errorf("reading stored session: %w", err)
	}

	if tokens.AccessToken != "" || c.transport.currentToken() != "" {
		if err := c.revoke(ctx, tokens.RefreshToken); err != nil {
			slog.WarnContext(ctx, "logout request failed", "error", err)
		}
	}

	c.transport.setBearer("")
	c.transport.coord.reset()
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func (c *Client) revoke(ctx context.Context, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = map[string]string{"refresh_token": refreshToken}
	}
	req, err := c.NewRequest(ctx, http.MethodPost, c.endpoints.Logout, nil, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	if resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// State reports the current session state.
func (c *Client) State(ctx context.Context) SessionState {
	if c.transport.coord.refreshing() {
		return StateRefreshPending
	}
	if c.transport.accessToken(ctx) != "" {
		return StateAuthenticated
	}
	return StateAnonymous
}

// Tokens returns the stored session.
func (c *Client) Tokens(ctx context.Context) (tokenstore.Tokens, error) {
	return c.store.Read(ctx)
}

// NewRequest builds a request for path relative to the base URL. A non-nil
// body is JSON-encoded.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req through the authenticating transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON sends body as JSON to path and decodes the response into out, if non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
