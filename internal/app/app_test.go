package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/infrastructure/config"
	"github.com/aifix/chat-auth/pkg/authclient"
)

func loadConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	if _, ok := vars["BCRYPT_COST"]; !ok {
		vars["BCRYPT_COST"] = "4"
	}
	cfg, err := config.LoadFrom(context.Background(), vars)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zerolog.Nop(), WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func serve(t *testing.T, a *App, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func tokenOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Token == "" {
		t.Fatalf("no token in %s", rec.Body)
	}
	return body.Token
}

const anaJSON = `{"name":"Ana","email":"Ana@X.com","password":"secret123"}`

func TestNew_MemoryBackend(t *testing.T) {
	a := newApp(t, loadConfig(t, map[string]string{"STORE_BACKEND": "memory"}))

	rec := serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body)
	}
	rec = serve(t, a, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d %s", rec.Code, rec.Body)
	}
}

func TestNew_FileBackendSurvivesRestart(t *testing.T) {
	vars := map[string]string{
		"STORE_BACKEND":   "file",
		"STORE_FILE_PATH": filepath.Join(t.TempDir(), "data", "users.json"),
	}

	first := newApp(t, loadConfig(t, vars))
	if rec := serve(t, first, http.MethodPost, "/api/auth/register", anaJSON, ""); rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newApp(t, loadConfig(t, vars))
	rec := serve(t, second, http.MethodPost, "/api/auth/login", `{"email":"ana@x.com","password":"secret123"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login after restart: expected 200, got %d %s", rec.Code, rec.Body)
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	a := newApp(t, loadConfig(t, map[string]string{
		"STORE_BACKEND": "sqlite",
		"SQLITE_PATH":   filepath.Join(t.TempDir(), "users.db"),
	}))

	if rec := serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, ""); rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body)
	}
	if rec := serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, ""); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}
}

func TestNew_RedisBackendWithRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, loadConfig(t, map[string]string{
		"STORE_BACKEND":    "redis",
		"REDIS_ADDR":       mr.Addr(),
		"REVOKE_ON_LOGOUT": "true",
		"DENYLIST_BACKEND": "redis",
	}))

	tok := tokenOf(t, serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, ""))
	if rec := serve(t, a, http.MethodGet, "/api/auth/me", "", tok); rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}

	serve(t, a, http.MethodPost, "/api/auth/logout", "", tok)

	rec := serve(t, a, http.MethodGet, "/api/auth/me", "", tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d %s", rec.Code, rec.Body)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected user and denylist keys in redis")
	}
}

func TestNew_MemoryDenylistWithFileStore(t *testing.T) {
	a := newApp(t, loadConfig(t, map[string]string{
		"STORE_BACKEND":    "file",
		"STORE_FILE_PATH":  filepath.Join(t.TempDir(), "users.json"),
		"REVOKE_ON_LOGOUT": "true",
	}))

	tok := tokenOf(t, serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, ""))
	serve(t, a, http.MethodPost, "/api/auth/logout", "", tok)

	if rec := serve(t, a, http.MethodGet, "/api/auth/me", "", tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestNew_TokensSurviveLogoutWithoutRevocation(t *testing.T) {
	a := newApp(t, loadConfig(t, map[string]string{"STORE_BACKEND": "memory"}))

	tok := tokenOf(t, serve(t, a, http.MethodPost, "/api/auth/register", anaJSON, ""))
	serve(t, a, http.MethodPost, "/api/auth/logout", "", tok)

	if rec := serve(t, a, http.MethodGet, "/api/auth/me", "", tok); rec.Code != http.StatusOK {
		t.Fatalf("expected stateless token to stay valid, got %d", rec.Code)
	}
}

func TestNew_Failures(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{"STORE_BACKEND": "memory"})
		cfg.Store.Backend = "tape"
		if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{"STORE_BACKEND": "redis", "REDIS_ADDR": "127.0.0.1:1"})
		if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown hasher", func(t *testing.T) {
		cfg := loadConfig(t, map[string]string{"STORE_BACKEND": "memory"})
		cfg.Auth.PasswordHasher = "md5"
		if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestJWTSecret(t *testing.T) {
	explicit := &config.Config{JWTSecret: "s3cret"}
	if got, err := jwtSecret(explicit, zerolog.Nop()); err != nil || got != "s3cret" {
		t.Fatalf("expected configured secret, got %q %v", got, err)
	}

	if _, err := jwtSecret(&config.Config{Env: "production"}, zerolog.Nop()); err == nil {
		t.Fatal("expected production to require a secret")
	}

	var logs bytes.Buffer
	dev := &config.Config{Env: "development"}
	a, err := jwtSecret(dev, zerolog.New(&logs))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := jwtSecret(dev, zerolog.Nop())
	if len(a) != 64 || a == b {
		t.Fatalf("expected distinct random secrets, got %q and %q", a, b)
	}
	if !strings.Contains(logs.String(), "JWT_SECRET") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}
}

func TestClientAgainstServer(t *testing.T) {
	a := newApp(t, loadConfig(t, map[string]string{
		"STORE_BACKEND":    "memory",
		"REVOKE_ON_LOGOUT": "true",
	}))
	srv := httptest.NewServer(a.Echo)
	defer srv.Close()

	c, err := authclient.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	u, err := c.Register(ctx, authclient.RegisterInput{Name: "Ana", Email: " ANA@x.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "ana@x.com" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}

	req, _ := http.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(`{"name":"Ana Maria"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.AuthFetch(req)
	if err != nil {
		t.Fatalf("auth fetch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile update: expected 200, got %d", resp.StatusCode)
	}

	ok, err := c.CheckStatus(ctx, false)
	if err != nil || !ok {
		t.Fatalf("status: %v %v", ok, err)
	}
	if c.User().Name != "Ana Maria" {
		t.Fatalf("expected refreshed profile, got %q", c.User().Name)
	}

	if err := c.Logout(ctx, false); err != nil {
		t.Fatal(err)
	}
	if c.IsAuthenticated() {
		t.Fatal("expected signed out")
	}

	if _, err := c.Login(ctx, "ana@x.com", "wrong-pass", false); err == nil {
		t.Fatal("expected bad credentials")
	}
}
