package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for tokens.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Each token is a separate keyring entry under the same service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

func (k *KeyringStore) accessKey() string  { return k.user + "/access_token" }
func (k *KeyringStore) refreshKey() string { return k.user + "/refresh_token" }

// Read returns the tokens from the system keyring. Returns ErrNotFound if neither is stored.
func (k *KeyringStore) Read(ctx context.Context) (Tokens, error) {
	if err := ctx.Err(); err != nil {
		return Tokens{}, err
	}

	access, err := k.get(k.accessKey())
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := k.get(k.refreshKey())
	if err != nil {
		return Tokens{}, err
	}

	tokens := Tokens{AccessToken: access, RefreshToken: refresh}
	if tokens.IsZero() {
		return Tokens{}, ErrNotFound
	}
	return tokens, nil
}

// Write persists both tokens to the system keyring, overwriting existing values.
// An empty refresh token removes the stored one.
func (k *KeyringStore) Write(ctx context.Context, tokens Tokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Set(k.service, k.accessKey(), tokens.AccessToken); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if tokens.RefreshToken == "" {
		return k.delete(k.refreshKey())
	}
	if err := keyring.Set(k.service, k.refreshKey(), tokens.RefreshToken); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Clear removes both keyring entries.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return errors.Join(k.delete(k.accessKey()), k.delete(k.refreshKey()))
}

func (k *KeyringStore) get(key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (k *KeyringStore) delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
