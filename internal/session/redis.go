package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Redis stores each session as a key with a TTL, so expiry is handled by the
// server and sessions survive restarts of this process.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Create(ctx context.Context, username string) (string, error) {
	token := newToken()
	if err := r.client.Set(ctx, keyPrefix+token, username, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: storing token: %w", err)
	}
	return token, nil
}

func (r *Redis) Resolve(ctx context.Context, token string) (string, error) {
	username, err := r.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: resolving token: %w", err)
	}
	return username, nil
}

func (r *Redis) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session: revoking token: %w", err)
	}
	return nil
}

// Close closes the client and its connection pool. The Redis store owns the
// client it was given.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("session: closing redis client: %w", err)
	}
	return nil
}
