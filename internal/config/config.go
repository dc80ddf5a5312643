package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"kalpla-auth/internal/pkg/jwt"
)

// Role cache backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type AppConfig struct {
	AppEnv   string
	LogLevel string

	// Role cache
	RoleCacheBackend string
	SuperAdminEmail  string

	// Redis
	RedisAddrs   []string
	RedisPass    string
	RedisDB      int
	RedisCluster bool
	// RateLimit enables the redis attempt limiter of the local provider
	RateLimit bool

	// Postgres
	DatabaseURL string

	// Remote lifecycle feed for `authctl watch`
	EventStreamURL string

	// Local provider tokens
	JWT jwt.Config

	// SMTP for verification code emails; disabled when SMTPHost is empty
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
	SMTPSecure   bool
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RoleCacheBackend: strings.ToLower(getEnv("ROLE_CACHE_BACKEND", BackendMemory)),
		SuperAdminEmail:  getEnv("SUPER_ADMIN_EMAIL", "founder@kalpla.com"),

		RedisAddrs:   getEnvSlice("REDIS_ADDR", []string{"localhost:6379"}),
		RedisPass:    getEnv("REDIS_PASS", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		RedisCluster: getEnvBool("REDIS_CLUSTER", false),
		RateLimit:    getEnvBool("AUTH_RATE_LIMIT", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		EventStreamURL: getEnv("EVENT_STREAM_URL", ""),

		JWT: jwt.Config{
			PrivPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", ""),
			Issuer:   getEnv("JWT_ISSUER", "kalpla-auth"),
			Audience: getEnv("JWT_AUDIENCE", "kalpla-web"),
			TTL:      getEnvDuration("JWT_TTL", time.Hour),
			KID:      getEnv("JWT_KID", "kalpla-key"),
		},

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "465"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Kalpla"),
		SMTPSecure:   strings.ToLower(getEnv("SMTP_SECURE", "true")) == "true",
	}
}

// IsProduction reports whether APP_ENV is production
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
