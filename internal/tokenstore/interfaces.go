package tokenstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no session is stored.
	ErrNotFound = errors.New("no stored session")

	// ErrReadOnly is returned by backends that cannot persist tokens.
	ErrReadOnly = errors.New("token storage is read-only")
)

// Tokens holds the credentials of one session.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsZero reports whether neither token is set.
func (t Tokens) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// TokenStore reads and writes session credentials to persistent storage.
//
// Both tokens are created together at login, updated on refresh and removed
// together on logout or when a refresh fails for good.
type TokenStore interface {
	// Read returns the stored tokens. Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) (Tokens, error)

	// Write persists both tokens, replacing any previous session.
	Write(ctx context.Context, tokens Tokens) error

	// Clear removes both tokens. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Locker serializes token refreshes across processes sharing one store.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done. The returned func
	// releases the lock.
	Lock(ctx context.Context) (unlock func(context.Context) error, err error)
}
