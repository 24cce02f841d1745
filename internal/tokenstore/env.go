package tokenstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to tokens stored in environment variables.
// Suitable for pre-provisioned sessions, but refreshed tokens cannot be persisted.
type EnvStore struct {
	accessKey  string
	refreshKey string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading the access token from accessKey and the
// refresh token from refreshKey. refreshKey may be empty.
func NewEnvStore(accessKey, refreshKey string) (*EnvStore, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}, nil
}

// Read returns the tokens from the environment. Returns ErrNotFound if both are unset.
func (e *EnvStore) Read(ctx context.Context) (Tokens, error) {
	if err := ctx.Err(); err != nil {
		return Tokens{}, err
	}

	tokens := Tokens{AccessToken: os.Getenv(e.accessKey)}
	if e.refreshKey != "" {
		tokens.RefreshToken = os.Getenv(e.refreshKey)
	}
	if tokens.IsZero() {
		return Tokens{}, ErrNotFound
	}
	return tokens, nil
}

// Write is not supported for environment variables.
func (e *EnvStore) Write(ctx context.Context, _ Tokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable %s: %w", e.accessKey, ErrReadOnly)
}

// Clear is not supported for environment variables.
func (e *EnvStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable %s: %w", e.accessKey, ErrReadOnly)
}
