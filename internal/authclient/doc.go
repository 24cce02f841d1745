// Package authclient provides an HTTP client for the service desk API that
// attaches bearer tokens and transparently recovers from expired access tokens.
//
// # Refresh Flow
//
// Transport is an http.RoundTripper. Every request carries the current access
// token. When a response is 401, the transport refreshes the access token once
// and retries the request:
//
//   - Only one refresh runs at a time per Transport. Requests that hit a 401
//     while a refresh is in flight are queued and released in FIFO order with
//     its outcome.
//   - Requests to the login, refresh and logout endpoints are never refreshed.
//   - A request is retried at most once; a 401 on the retry is returned as is.
//   - A request sent with a token that has since been replaced is retried with
//     the current token instead of refreshing again.
//
// When the refresh fails (no refresh token stored, the endpoint rejects it, or
// the refresh timeout elapses) both tokens are removed from the store, all
// queued requests fail with a *SessionExpiredError, and the Notifier receives a
// single EventSessionExpired. The Notifier is how the application shell learns
// that the user must log in again.
//
// # Shared Stores
//
// Several processes may share one token store (see tokenstore.RedisStore).
// With a tokenstore.Locker configured, a refresh first takes the lock and then
// re-reads the store, adopting a token written by another process instead of
// refreshing again.
//
// # Usage
//
//	client, err := authclient.New(baseURL, store,
//		authclient.WithNotifier(notifier),
//		authclient.WithRefreshTimeout(10*time.Second),
//	)
//	if err := client.Login(ctx, "alice", password); err != nil { ... }
//	var tickets []Ticket
//	err = client.GetJSON(ctx, "/tickets", nil, &tickets)
package authclient
