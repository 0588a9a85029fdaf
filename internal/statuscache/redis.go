// Package statuscache mirrors run statuses in redis so cancellation checkpoints
// stay cheap and visible across server processes.
package statuscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/petasbytes/recagent/internal/model"
)

// DefaultTTL keeps entries around long enough to outlive any turn.
const DefaultTTL = 24 * time.Hour

// RedisCache stores run:<id>:status keys.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache pings client before returning.
func NewRedisCache(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Dial connects to addr and wraps the client.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	return NewRedisCache(ctx, redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func key(runID string) string { return fmt.Sprintf("run:%s:status", runID) }

// Get returns the cached status. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, runID string) (model.RunStatus, bool, error) {
	v, err := c.client.Get(ctx, key(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.RunStatus(v), true, nil
}

// Set stores s for runID.
func (c *RedisCache) Set(ctx context.Context, runID string, s model.RunStatus) error {
	return c.client.Set(ctx, key(runID), string(s), c.ttl).Err()
}

// Delete drops the cached status for runID.
func (c *RedisCache) Delete(ctx context.Context, runID string) error {
	return c.client.Del(ctx, key(runID)).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
