package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Endpoint holds the absolute URLs of the token endpoints.
type Endpoint struct {
	LoginURL   string
	RefreshURL string
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*exchangerConfig)

// exchangerConfig holds configuration for NewExchanger.
type exchangerConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) ExchangerOption {
	return func(c *exchangerConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds every token request. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) ExchangerOption {
	return func(c *exchangerConfig) {
		c.timeout = timeout
	}
}

// Exchanger obtains tokens from the login and refresh endpoints.
// Safe for concurrent use.
type Exchanger struct {
	login      *oauth2.Config
	refresh    *oauth2.Config
	httpClient *http.Client
}

// NewExchanger creates an Exchanger for the given endpoints.
func NewExchanger(endpoint Endpoint, opts ...ExchangerOption) (*Exchanger, error) {
	if endpoint.LoginURL == "" || endpoint.RefreshURL == "" {
		return nil, fmt.Errorf("login and refresh URLs are required")
	}

	cfg := &exchangerConfig{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// AuthStyleInParams stops oauth2 from probing with Basic auth; without a
	// client ID nothing client-related is added to the body.
	newConfig := func(tokenURL string) *oauth2.Config {
		return &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}

	return &Exchanger{
		login:   newConfig(endpoint.LoginURL),
		refresh: newConfig(endpoint.RefreshURL),
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &jsonTokenTransport{
				base: cfg.baseTransport,
			},
		},
	}, nil
}

// Login exchanges user credentials for an access and refresh token.
func (e *Exchanger) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	return e.login.PasswordCredentialsToken(e.withClient(ctx), username, password)
}

// Refresh exchanges a refresh token for a new access token. If the server does
// not rotate the refresh token, the returned token carries the one passed in.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token cannot be empty")
	}

	// A token without access token is never valid, so Token() always refreshes.
	ts := e.refresh.TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return ts.Token()
}

// withClient injects the JSON-encoding HTTP client via oauth2's documented context key.
func (e *Exchanger) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// jsonTokenTransport converts oauth2's form-encoded token requests to the JSON
// bodies expected by the service desk API.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type jsonTokenTransport struct {
	base http.RoundTripper
}

// Compile-time check that jsonTokenTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jsonTokenTransport)(nil)

// RoundTrip converts the request body from form-encoded to JSON.
func (t *jsonTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonData := make(map[string]string, len(formData))
	for key, values := range formData {
		if key == "grant_type" {
			continue
		}
		jsonData[key] = values[0] // OAuth2 spec defines single-value parameters
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")
	newReq.Header.Set("Accept", "application/json")

	return t.base.RoundTrip(newReq)
}
