// internal/repository/memory/role_cache.go
package memory

import (
	"context"
	"sync"
)

// RoleCache is a process-local key/value store, the default role cache for
// a single client session
type RoleCache struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewRoleCache() *RoleCache {
	return &RoleCache{data: make(map[string]string)}
}

func (c *RoleCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *RoleCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *RoleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
