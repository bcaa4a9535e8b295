package out

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"punchclock/internal/modules/attendance/domain"
	apperrors "punchclock/internal/platform/errors"
)

// RedisSnapshotCache shares snapshots between installations pointed at the
// same Redis, e.g. a kiosk fleet.
type RedisSnapshotCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSnapshotCache(client redis.UniversalClient, prefix string) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, prefix: prefix}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, key string) (domain.CachedSnapshot, error) {
	if err := validateKey(key); err != nil {
		return domain.CachedSnapshot{}, err
	}
	payload, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CachedSnapshot{}, apperrors.ErrNotFound
		}
		return domain.CachedSnapshot{}, fmt.Errorf("redis get session snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

func (c *RedisSnapshotCache) Set(ctx context.Context, key string, snapshot domain.CachedSnapshot) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.redisKey(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set session snapshot: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) Clear(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis clear session snapshot: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) redisKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}
