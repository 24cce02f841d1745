package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
)

// RedisStore keeps the session in a Redis hash so that several processes
// (CLI invocations, gateways) share one login.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Compile-time check to ensure RedisStore implements TokenStore
var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore storing the session under key.
// A zero ttl keeps the session until it is cleared.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("missing redis client")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	return &RedisStore{client: client, key: key, ttl: ttl}, nil
}

// Read returns the stored session. Returns ErrNotFound if the hash is missing or empty.
func (r *RedisStore) Read(ctx context.Context) (Tokens, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Tokens{}, err
	}

	tokens := Tokens{
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
	}
	if tokens.IsZero() {
		return Tokens{}, ErrNotFound
	}
	return tokens, nil
}

// Write replaces the stored session in a single transaction.
func (r *RedisStore) Write(ctx context.Context, tokens Tokens) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, fieldAccessToken, tokens.AccessToken, fieldRefreshToken, tokens.RefreshToken)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	return err
}

// Clear deletes the session hash.
func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// releaseScript deletes the lock only if it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is returned on unlock when the lock expired and was taken by someone else.
var ErrLockLost = errors.New("refresh lock lost")

// RedisLocker is a short-lived Redis lock (SET NX PX) guarding token refreshes.
type RedisLocker struct {
	client       *redis.Client
	key          string
	ttl          time.Duration
	pollInterval time.Duration
}

// Compile-time check to ensure RedisLocker implements Locker
var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder
// can block other processes.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("missing redis client")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}

	return &RedisLocker{client: client, key: key, ttl: ttl, pollInterval: 50 * time.Millisecond}, nil
}

// Lock polls until the lock is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context) (func(context.Context) error, error) {
	owner := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring refresh lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Int()
				if err != nil {
					return fmt.Errorf("releasing refresh lock: %w", err)
				}
				if n == 0 {
					return ErrLockLost
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for refresh lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
