// internal/repository/cache/role_cache.go
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "kalpla"

// RoleCache stores serialized role resolutions in Redis. Entries have no
// TTL: a resolution lives until it is overwritten by an admin update.
type RoleCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRoleCache(client redis.UniversalClient, prefix string) *RoleCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RoleCache{client: client, prefix: prefix}
}

// Get returns the stored value; a missing key is not an error
func (c *RoleCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from redis: %w", key, err)
	}
	return val, true, nil
}

func (c *RoleCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s in redis: %w", key, err)
	}
	return nil
}

// Delete removes an entry so the next lookup re-derives it
func (c *RoleCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RoleCache) key(k string) string {
	return fmt.Sprintf("%s:%s", c.prefix, k)
}
