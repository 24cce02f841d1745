package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoRefreshToken is the cause of a session expiry when no refresh token was stored.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// SessionExpiredError is returned to every request waiting on a refresh that failed.
// The session has been cleared; the user has to log in again.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return "session expired: " + e.Err.Error()
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// IsSessionExpired reports whether err is or wraps a *SessionExpiredError.
func IsSessionExpired(err error) bool {
	var sessionErr *SessionExpiredError
	return errors.As(err, &sessionErr)
}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
