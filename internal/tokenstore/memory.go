package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps tokens in process memory. Sessions do not survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore seeded with the given tokens.
func NewMemoryStore(initial Tokens) *MemoryStore {
	return &MemoryStore{tokens: initial}
}

func (m *MemoryStore) Read(ctx context.Context) (Tokens, error) {
	if err := ctx.Err(); err != nil {
		return Tokens{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tokens.IsZero() {
		return Tokens{}, ErrNotFound
	}
	return m.tokens, nil
}

func (m *MemoryStore) Write(ctx context.Context, tokens Tokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.tokens = tokens
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.tokens = Tokens{}
	m.mu.Unlock()
	return nil
}
