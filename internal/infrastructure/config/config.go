package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Store StoreConfig
	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
}

type StoreConfig struct {
	Backend     string        `env:"STORE_BACKEND,   default=file"`
	FilePath    string        `env:"STORE_FILE_PATH, default=data/users.json"`
	SQLitePath  string        `env:"SQLITE_PATH,     default=data/users.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
	CacheTTL    time.Duration `env:"CACHE_TTL,       default=60s"`
	Writers     int           `env:"STORE_WRITERS,   default=1"`
}

type AuthConfig struct {
	TokenTTL       time.Duration `env:"TOKEN_TTL,       default=24h"`
	RememberTTL    time.Duration `env:"REMEMBER_TTL,    default=720h"`
	RefreshWindow  time.Duration `env:"REFRESH_WINDOW,  default=15m"`
	PasswordHasher string        `env:"PASSWORD_HASHER, default=bcrypt"`
	BcryptCost     int           `env:"BCRYPT_COST,     default=10"`
	AdminUserIDs   []string      `env:"ADMIN_USER_IDS"`
	RevokeOnLogout bool          `env:"REVOKE_ON_LOGOUT, default=false"`
	Denylist       string        `env:"DENYLIST_BACKEND, default=memory"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=chat_auth"`
}

type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR,       default=localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,         default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX, default=chatauth"`
}

// IsProduction reports whether the server runs with production hardening
// (secure cookies, mandatory JWT secret).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from a fixed set of variables.
func LoadFrom(ctx context.Context, vars map[string]string) (*Config, error) {
	return load(ctx, envconfig.MapLookuper(vars))
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	for i, id := range cfg.Auth.AdminUserIDs {
		cfg.Auth.AdminUserIDs[i] = strings.TrimSpace(id)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis, BackendMongo:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Auth.Denylist {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: unknown DENYLIST_BACKEND %q", c.Auth.Denylist)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required in production")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.RememberTTL <= 0 {
		return fmt.Errorf("config: token lifetimes must be positive")
	}
	if c.Auth.RefreshWindow >= c.Auth.TokenTTL {
		return fmt.Errorf("config: REFRESH_WINDOW (%s) must be shorter than TOKEN_TTL (%s)", c.Auth.RefreshWindow, c.Auth.TokenTTL)
	}
	return nil
}
