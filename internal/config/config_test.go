package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "ROLE_CACHE_BACKEND", "SUPER_ADMIN_EMAIL", "REDIS_ADDR", "JWT_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, BackendMemory, cfg.RoleCacheBackend)
	assert.Equal(t, "founder@kalpla.com", cfg.SuperAdminEmail)
	assert.Equal(t, []string{"localhost:6379"}, cfg.RedisAddrs)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("ROLE_CACHE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "r1:6379, r2:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_CLUSTER", "true")
	t.Setenv("AUTH_RATE_LIMIT", "1")
	t.Setenv("SUPER_ADMIN_EMAIL", "owner@kalpla.com")
	t.Setenv("JWT_TTL", "15m")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendRedis, cfg.RoleCacheBackend)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.RedisAddrs)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.RedisCluster)
	assert.True(t, cfg.RateLimit)
	assert.Equal(t, "owner@kalpla.com", cfg.SuperAdminEmail)
	assert.Equal(t, 15*time.Minute, cfg.JWT.TTL)
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	t.Setenv("JWT_TTL", "forever")

	cfg := Load()

	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
}
