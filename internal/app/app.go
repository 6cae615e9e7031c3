// Package app assembles the chat auth server from configuration.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/api"
	"github.com/aifix/chat-auth/internal/api/handler"
	"github.com/aifix/chat-auth/internal/core/ports"
	"github.com/aifix/chat-auth/internal/core/service"
	"github.com/aifix/chat-auth/internal/infrastructure/config"
	"github.com/aifix/chat-auth/internal/infrastructure/db/file"
	"github.com/aifix/chat-auth/internal/infrastructure/db/memory"
	"github.com/aifix/chat-auth/internal/infrastructure/db/mongo"
	"github.com/aifix/chat-auth/internal/infrastructure/db/postgres"
	"github.com/aifix/chat-auth/internal/infrastructure/db/redis"
	"github.com/aifix/chat-auth/internal/infrastructure/db/sqlite"
	"github.com/aifix/chat-auth/internal/infrastructure/denylist"
	"github.com/aifix/chat-auth/internal/infrastructure/queue"
	"github.com/aifix/chat-auth/internal/pkg/password"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

// App is a fully wired server.
type App struct {
	Echo  *echo.Echo
	Store *service.UserStore
	Auth  *service.AuthService

	writes  *queue.Serializer
	closers []func() error
}

// Option customises New.
type Option func(*options)

type options struct {
	registry *prometheus.Registry
}

// WithRegistry sends HTTP metrics to reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New connects the configured backends and builds the HTTP router.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	secret, err := jwtSecret(cfg, log)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(secret)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	hasher, err := password.New(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	var sharedRedis *goredis.Client
	redisClient := func() (*goredis.Client, error) {
		if sharedRedis != nil {
			return sharedRedis, nil
		}
		c, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		sharedRedis = c
		// The redis user backend closes the same client.
		a.closers = append(a.closers, func() error {
			if err := c.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
				return err
			}
			return nil
		})
		return c, nil
	}

	backend, err := openBackend(ctx, cfg, log, redisClient)
	if err != nil {
		return nil, err
	}

	a.writes = queue.NewSerializer(cfg.Store.Writers, log)
	store, err := service.NewUserStore(service.StoreConfig{
		Backend:     backend,
		BackendName: cfg.Store.Backend,
		Hasher:      hasher,
		Writes:      a.writes,
		CacheTTL:    cfg.Store.CacheTTL,
		Logger:      log,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	a.Store = store

	var revoked ports.TokenDenylist
	if cfg.Auth.RevokeOnLogout {
		switch cfg.Auth.Denylist {
		case config.BackendRedis:
			c, err := redisClient()
			if err != nil {
				return nil, fmt.Errorf("denylist: %w", err)
			}
			revoked = denylist.NewRedis(c, cfg.Redis.KeyPrefix)
		default:
			revoked = denylist.NewMemory(time.Now)
		}
		log.Info().Str("backend", cfg.Auth.Denylist).Msg("token revocation on logout enabled")
	}

	a.Auth = service.NewAuthService(store, tokens, revoked, service.SessionPolicy{
		TTL:           cfg.Auth.TokenTTL,
		RememberTTL:   cfg.Auth.RememberTTL,
		RefreshWindow: cfg.Auth.RefreshWindow,
	}, log)

	deps := map[string]handler.Pinger{"user_store": store}
	if sharedRedis != nil && cfg.Store.Backend != config.BackendRedis {
		deps["redis"] = redisPinger{sharedRedis}
	}

	a.Echo = api.NewRouter(api.RouterConfig{
		Auth:         a.Auth,
		Admin:        store,
		Cookies:      handler.CookiePolicy{Secure: cfg.IsProduction()},
		AdminUserIDs: cfg.Auth.AdminUserIDs,
		Dependencies: deps,
		Logger:       log,
		Registry:     o.registry,
	})

	ok = true
	return a, nil
}

// Close drains pending writes and releases backends in reverse order.
func (a *App) Close() error {
	if a.writes != nil {
		a.writes.Close()
		a.writes = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

type redisPinger struct{ c *goredis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// jwtSecret returns the signing secret. Outside production an empty secret
// is replaced by a random one, which invalidates sessions on restart.
func jwtSecret(cfg *config.Config, log zerolog.Logger) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	if cfg.IsProduction() {
		return "", errors.New("JWT_SECRET is required in production")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	log.Warn().Msg("JWT_SECRET not set, using a random per-process secret")
	return hex.EncodeToString(buf), nil
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger, redisClient func() (*goredis.Client, error)) (ports.UserRepository, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewUserRepository(), nil

	case config.BackendFile:
		return file.NewUserRepository(cfg.Store.FilePath, log), nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.NewUserRepository(db), nil

	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Store.PostgresDSN})
		if err != nil {
			return nil, err
		}
		return postgres.NewUserRepository(pool), nil

	case config.BackendRedis:
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		return redis.NewUserRepository(c, cfg.Redis.KeyPrefix), nil

	case config.BackendMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		return mongo.NewUserRepository(client, db), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
