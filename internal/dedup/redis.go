package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	nanoredis "github.com/dayuer/castbot/internal/redis"
)

// RedisStore is a Store backed by SET NX PX, which is atomic on the server.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces keys inside
// nanoredis.KeyDedup so several gates can share one database.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: nanoredis.KeyDedup + prefix,
	}
}

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: admit %q: %w", key, err)
	}
	return ok, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("dedup: release %q: %w", key, err)
	}
	return nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context) error {
	return nanoredis.DeletePrefix(ctx, s.client, s.prefix)
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
