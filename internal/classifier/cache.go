package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss signals that no cached response exists for a key.
var ErrCacheMiss = errors.New("classifier: cache miss")

// ResponseCache stores raw classifier responses keyed by text hash.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a ResponseCache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client. A nil client yields a nil cache.
func NewRedisCache(client *redis.Client) ResponseCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
