// internal/app/app.go
package app

import (
	"context"
	"fmt"

	"kalpla-auth/internal/config"
	"kalpla-auth/internal/db"
	"kalpla-auth/internal/events"
	"kalpla-auth/internal/pkg/jwt"
	"kalpla-auth/internal/pkg/ratelimit"
	"kalpla-auth/internal/provider/local"
	"kalpla-auth/internal/repository/cache"
	"kalpla-auth/internal/repository/memory"
	"kalpla-auth/internal/repository/postgres"
	authsvc "kalpla-auth/internal/service/auth"
	"kalpla-auth/internal/service/email"
	"kalpla-auth/internal/service/role"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App is the composition root: one coordinator wired to the local provider,
// the configured role cache and an in-process event hub
type App struct {
	Config      config.AppConfig
	Logger      *zap.Logger
	Hub         *events.Hub
	Provider    *local.Provider
	Roles       *role.Resolver
	Coordinator *authsvc.Coordinator

	redis   redis.UniversalClient
	closers []func()
}

// NewLogger builds a production logger for APP_ENV=production and a
// development one otherwise, at LOG_LEVEL
func NewLogger(cfg config.AppConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zcfg.Build()
}

func New(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, sink local.CodeSink) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// ----- Role cache -----
	store, err := a.roleStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Roles = role.NewResolver(store, cfg.SuperAdminEmail, logger.Named("role"))

	// ----- JWT Manager -----
	tokens, err := jwt.LoadAndBuild(cfg.JWT)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Local provider -----
	a.Hub = events.NewHub(logger.Named("events"))

	if cfg.SMTPHost != "" {
		sender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFromName, cfg.SMTPSecure)
		codes := email.NewCodeMailer(sender, sink, logger.Named("email"))
		sink = codes.Deliver
		a.closers = append(a.closers, codes.Close)
	}

	opts := []local.Option{local.WithCodeSink(sink)}
	if cfg.RateLimit {
		client, err := a.redisClient(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, local.WithLimiter(ratelimit.NewLimiter(client, "kalpla:ratelimit")))
	}
	a.Provider = local.New(tokens, a.Hub, logger.Named("provider"), opts...)

	// ----- Coordinator -----
	a.Coordinator = authsvc.NewCoordinator(a.Provider, a.Hub, a.Roles, logger.Named("session"))
	a.closers = append(a.closers, a.Coordinator.Close)

	return a, nil
}

func (a *App) roleStore(ctx context.Context) (role.Store, error) {
	switch a.Config.RoleCacheBackend {
	case config.BackendMemory, "":
		return memory.NewRoleCache(), nil

	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return cache.NewRoleCache(client, "kalpla"), nil

	case config.BackendPostgres:
		pool, err := db.ConnectPostgres(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		repo := postgres.NewRoleCacheRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown role cache backend %q", a.Config.RoleCacheBackend)
	}
}

func (a *App) redisClient(ctx context.Context) (redis.UniversalClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}

	client, err := db.NewRedisClient(ctx, db.RedisConfig{
		ClusterMode: a.Config.RedisCluster,
		Addresses:   a.Config.RedisAddrs,
		Password:    a.Config.RedisPass,
		DB:          a.Config.RedisDB,
		PoolSize:    10,
	})
	if err != nil {
		return nil, err
	}

	a.Logger.Info("connected to redis", zap.Strings("addrs", a.Config.RedisAddrs))
	a.redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

// Close releases everything New opened, newest first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
