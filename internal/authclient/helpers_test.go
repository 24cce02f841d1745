package authclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/deskclient/internal/tokenstore"
)

const testBaseURL = "http://desk.test/api/v1"

// apiRequest is one request as seen by fakeAPI.
type apiRequest struct {
	Method string
	Path   string
	Token  string
	Body   string
}

// fakeAPI is a RoundTripper standing in for the service desk API. Requests
// with a valid bearer token get 200, all others 401, unless a status is forced
// for the path.
type fakeAPI struct {
	mu       sync.Mutex
	valid    map[string]bool
	status   map[string]int
	bodies   map[string]string
	requests []apiRequest
}

func newFakeAPI(validTokens ...string) *fakeAPI {
	f := &fakeAPI{
		valid:  map[string]bool{},
		status: map[string]int{},
		bodies: map[string]string{},
	}
	for _, tok := range validTokens {
		f.valid[tok] = true
	}
	return f
}

func (f *fakeAPI) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
	}
	token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")

	f.mu.Lock()
	f.requests = append(f.requests, apiRequest{Method: req.Method, Path: req.URL.Path, Token: token, Body: string(body)})
	status, forced := f.status[req.URL.Path]
	if !forced {
		status = http.StatusOK
		if !f.valid[token] {
			status = http.StatusUnauthorized
		}
	}
	respBody := f.bodies[req.URL.Path]
	f.mu.Unlock()

	if respBody == "" {
		respBody = `{"ok":true}`
	}

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(respBody)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

func (f *fakeAPI) allow(token string) {
	f.mu.Lock()
	f.valid[token] = true
	f.mu.Unlock()
}

func (f *fakeAPI) force(path string, status int, body string) {
	f.mu.Lock()
	f.status[path] = status
	f.bodies[path] = body
	f.mu.Unlock()
}

func (f *fakeAPI) recorded() []apiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiRequest(nil), f.requests...)
}

// fakeAuth issues next on every refresh and marks it valid on the API.
// When release is set, refreshes block until it is closed.
type fakeAuth struct {
	api     *fakeAPI
	next    string
	err     error
	release chan struct{}

	loginToken *oauth2.Token
	loginErr   error

	mu           sync.Mutex
	refreshCalls []string
}

func (a *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	a.mu.Lock()
	a.refreshCalls = append(a.refreshCalls, refreshToken)
	a.mu.Unlock()

	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.api != nil {
		a.api.allow(a.next)
	}
	return &oauth2.Token{AccessToken: a.next}, nil
}

func (a *fakeAuth) Login(context.Context, string, string) (*oauth2.Token, error) {
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return a.loginToken, nil
}

func (a *fakeAuth) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.refreshCalls...)
}

// recordingNotifier collects events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) recorded() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// countingStore counts Read calls on the wrapped store.
type countingStore struct {
	tokenstore.TokenStore

	mu    sync.Mutex
	reads int
}

func (s *countingStore) Read(ctx context.Context) (tokenstore.Tokens, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.TokenStore.Read(ctx)
}

func (s *countingStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func newTestClient(t *testing.T, store tokenstore.TokenStore, api *fakeAPI, auth *fakeAuth, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseTransport(api), WithAuthenticator(auth)}, opts...)
	client, err := New(testBaseURL, store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
