package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8080" || cfg.Env != "development" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.CacheTTL != 60*time.Second || cfg.Store.Writers != 1 {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.RememberTTL != 30*24*time.Hour || cfg.Auth.RefreshWindow != 15*time.Minute {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Auth.RevokeOnLogout {
		t.Fatalf("revocation must be opt-in")
	}
	if cfg.IsProduction() {
		t.Fatalf("default env is not production")
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), map[string]string{
		"ENV":              "Production",
		"JWT_SECRET":       "s3cret",
		"STORE_BACKEND":    " SQLite ",
		"TOKEN_TTL":        "2h",
		"ADMIN_USER_IDS":   "u-1, u-2",
		"REVOKE_ON_LOGOUT": "true",
		"DENYLIST_BACKEND": "redis",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %s", cfg.Auth.TokenTTL)
	}
	want := []string{"u-1", "u-2"}
	if len(cfg.Auth.AdminUserIDs) != 2 || cfg.Auth.AdminUserIDs[0] != want[0] || cfg.Auth.AdminUserIDs[1] != want[1] {
		t.Fatalf("expected trimmed admin ids %v, got %v", want, cfg.Auth.AdminUserIDs)
	}
	if !cfg.Auth.RevokeOnLogout || cfg.Auth.Denylist != BackendRedis {
		t.Fatalf("unexpected revocation settings: %+v", cfg.Auth)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "cassandra"}, "STORE_BACKEND"},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}, "POSTGRES_DSN"},
		{"production without secret", map[string]string{"ENV": "production"}, "JWT_SECRET"},
		{"window longer than ttl", map[string]string{"TOKEN_TTL": "10m"}, "REFRESH_WINDOW"},
		{"unknown denylist", map[string]string{"DENYLIST_BACKEND": "etcd"}, "DENYLIST_BACKEND"},
		{"bad duration", map[string]string{"CACHE_TTL": "soon"}, "CACHE_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), tc.vars)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
