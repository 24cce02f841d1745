package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/florianilch/deskclient/internal/tokenstore"
)

const (
	headerRequestID = "X-Request-Id"

	// maxErrorBody bounds how much of a 422 body is inspected for a message.
	maxErrorBody = 1 << 20

	// cleanupTimeout bounds store cleanup after a failed refresh, which may run
	// after the refresh context has already expired.
	cleanupTimeout = 5 * time.Second
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Transport is an http.RoundTripper that attaches the session's bearer token and
// refreshes it on 401 responses. See the package documentation for the flow.
type Transport struct {
	base      http.RoundTripper
	store     tokenstore.TokenStore
	refresher Refresher
	locker    tokenstore.Locker
	notifier  Notifier
	metrics   *Metrics

	refreshTimeout time.Duration
	loginActive    func() bool
	exempt         map[string]bool

	// bearer is the default token for new requests, set on login and refresh.
	bearer atomic.Pointer[string]
	coord  refreshCoordinator
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// retriedKey marks a request context as already replayed once.
type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	return t.roundTrip(ctx, req, getBody, t.accessToken(ctx))
}

func (t *Transport) roundTrip(ctx context.Context, req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	resp, err := t.send(ctx, req, getBody, token)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if t.exempt[req.URL.Path] || isRetried(ctx) {
			return resp, nil
		}
		drainAndClose(resp.Body)

		fresh, err := t.refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		t.metrics.observeRetried()
		slog.DebugContext(ctx, "replaying request with refreshed token", "method", req.Method, "path", req.URL.Path)
		return t.roundTrip(markRetried(ctx), req, getBody, fresh)

	case http.StatusForbidden:
		if token != "" && !t.loginActive() {
			t.notify(ctx, req, Event{Kind: EventForbidden, Message: MessageForbidden})
		}

	case http.StatusUnprocessableEntity:
		t.notify(ctx, req, Event{Kind: EventValidationFailed, Message: validationMessage(resp)})

	case http.StatusInternalServerError:
		t.notify(ctx, req, Event{Kind: EventServerError, Message: MessageServerError})
	}

	return resp, nil
}

// send clones req with a fresh body and the given bearer token.
func (t *Transport) send(ctx context.Context, req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	out := req.Clone(ctx)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = body
	}

	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if out.Header.Get(headerRequestID) == "" {
		out.Header.Set(headerRequestID, uuid.NewString())
	}

	return t.base.RoundTrip(out)
}

// refresh returns a token to replay a request that got a 401 with stale.
// Only one caller performs the refresh; the others wait for its outcome.
func (t *Transport) refresh(ctx context.Context, stale string) (string, error) {
	resumed := make(chan refreshResult, 1)
	turn := t.coord.join(stale, t.currentToken, func(res refreshResult) { resumed <- res })

	switch {
	case turn.settled != nil:
		return turn.settled.token, turn.settled.err

	case turn.queued:
		t.metrics.observeQueued()
		select {
		case res := <-resumed:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	res := t.performRefresh(ctx, stale)
	t.coord.settle(stale, res)

	var sessionErr *SessionExpiredError
	if errors.As(res.err, &sessionErr) {
		t.metrics.observeSessionExpired()
		if !t.loginActive() {
			t.notifyEvent(ctx, Event{Kind: EventSessionExpired, Message: MessageSessionExpired, Err: sessionErr})
		}
	}

	return res.token, res.err
}

// performRefresh runs the refresh call on behalf of every queued request.
func (t *Transport) performRefresh(ctx context.Context, stale string) refreshResult {
	// Queued requests depend on this refresh, so it must outlive the caller's cancellation.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.refreshTimeout)
	defer cancel()

	token, outcome, err := t.obtainToken(refreshCtx, stale)
	if err != nil {
		t.metrics.observeRefresh(outcomeFailed)
		slog.WarnContext(ctx, "token refresh failed, ending session", "error", err)

		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		t.endSession(cleanupCtx)

		return refreshResult{err: &SessionExpiredError{Err: err}}
	}

	t.metrics.observeRefresh(outcome)
	slog.DebugContext(ctx, "access token renewed", "outcome", outcome)
	return refreshResult{token: token}
}

// obtainToken produces a new access token, either by calling the refresh
// endpoint or by adopting one another process already stored.
func (t *Transport) obtainToken(ctx context.Context, stale string) (string, string, error) {
	if t.locker != nil {
		unlock, err := t.locker.Lock(ctx)
		if err != nil {
			return "", "", err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "failed to release refresh lock", "error", err)
			}
		}()
	}

	stored, err := t.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return "", "", fmt.Errorf("reading stored session: %w", err)
	}

	if stored.AccessToken != "" && stored.AccessToken != stale {
		t.setBearer(stored.AccessToken)
		return stored.AccessToken, outcomeAdopted, nil
	}
	if stored.RefreshToken == "" {
		return "", "", ErrNoRefreshToken
	}

	fresh, err := t.refresher.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return "", "", err
	}

	next := tokenstore.Tokens{AccessToken: fresh.AccessToken, RefreshToken: fresh.RefreshToken}
	if next.RefreshToken == "" {
		next.RefreshToken = stored.RefreshToken
	}
	if err := t.store.Write(ctx, next); err != nil {
		// This process keeps working with the new token; other processes and
		// the next start will have to refresh again.
		slog.ErrorContext(ctx, "failed to persist refreshed session", "error", err)
	}

	t.setBearer(fresh.AccessToken)
	return fresh.AccessToken, outcomeRefreshed, nil
}

// startSession installs the access token of a new login.
func (t *Transport) startSession(accessToken string) {
	t.setBearer(accessToken)
	t.coord.reset()
}

// endSession removes both tokens from memory and storage.
func (t *Transport) endSession(ctx context.Context) {
	t.setBearer("")
	if err := t.store.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear stored session", "error", err)
	}
}

// accessToken returns the default bearer token, falling back to storage.
func (t *Transport) accessToken(ctx context.Context) string {
	if token := t.currentToken(); token != "" {
		return token
	}

	stored, err := t.store.Read(ctx)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read stored session", "error", err)
		}
		return ""
	}
	return stored.AccessToken
}

func (t *Transport) currentToken() string {
	if p := t.bearer.Load(); p != nil {
		return *p
	}
	return ""
}

func (t *Transport) setBearer(token string) {
	if token == "" {
		t.bearer.Store(nil)
		return
	}
	t.bearer.Store(&token)
}

func (t *Transport) notify(ctx context.Context, req *http.Request, ev Event) {
	ev.Method = req.Method
	ev.Path = req.URL.Path
	t.notifyEvent(ctx, ev)
}

func (t *Transport) notifyEvent(ctx context.Context, ev Event) {
	t.notifier.Notify(ctx, ev)
}

// replayableBody returns a func producing fresh copies of the request body, or
// nil if the request has none. The original body is consumed and closed.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	defer func() { _ = req.Body.Close() }()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// validationMessage extracts the server's explanation from a 422 body and
// leaves the body readable for the caller.
func validationMessage(resp *http.Response) string {
	if resp.Body == nil {
		return MessageValidationFailed
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), resp.Body), resp.Body}
	if err != nil || !gjson.ValidBytes(data) {
		return MessageValidationFailed
	}

	detail := gjson.GetBytes(data, "detail")
	switch {
	case detail.Type == gjson.String && detail.String() != "":
		return detail.String()
	case detail.IsArray():
		var msgs []string
		for _, msg := range detail.Get("#.msg").Array() {
			if msg.String() != "" {
				msgs = append(msgs, msg.String())
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	if msg := gjson.GetBytes(data, "message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return MessageValidationFailed
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
