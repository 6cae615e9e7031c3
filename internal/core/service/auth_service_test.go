package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

type stubDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func newStubDenylist() *stubDenylist {
	return &stubDenylist{revoked: make(map[string]time.Time)}
}

func (d *stubDenylist) Revoke(_ context.Context, id string, exp time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.revoked[id] = exp
	return nil
}

func (d *stubDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.revoked[id]
	return ok, nil
}

type authFixture struct {
	svc    *AuthService
	store  *UserStore
	repo   *stubUserRepo
	clock  *testClock
	tokens *token.Manager
}

func newAuthFixture(t *testing.T, denylist *stubDenylist) *authFixture {
	t.Helper()
	store, repo, clk := newTestStore(t)
	tokens, err := token.NewManager("test-secret", token.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	var svc *AuthService
	if denylist != nil {
		svc = NewAuthService(store, tokens, denylist, SessionPolicy{}, zerolog.Nop())
	} else {
		svc = NewAuthService(store, tokens, nil, SessionPolicy{}, zerolog.Nop())
	}
	return &authFixture{svc: svc, store: store, repo: repo, clock: clk, tokens: tokens}
}

func TestAuthService_RegisterThenLoginWithDifferentCasing(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "Ana@X.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Email != "ana@x.com" {
		t.Fatalf("expected normalized email, got %q", reg.User.Email)
	}
	if reg.Token.Value == "" {
		t.Fatalf("register must issue a token")
	}
	if got := reg.Token.ExpiresAt.Sub(f.clock.Now()); got != DefaultSessionTTL {
		t.Fatalf("expected %s session, got %s", DefaultSessionTTL, got)
	}

	login, err := f.svc.Login(ctx, "ana@x.com", "secret1", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("login resolved a different user")
	}

	claims, err := f.tokens.Verify(login.Token.Value)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.UserID != reg.User.ID || claims.Email != "ana@x.com" || claims.Name != "Ana" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	_, _ = f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	if _, err := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ANA@x.com", Password: "secret1"}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Login_Rejections(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})

	if _, err := f.svc.Login(ctx, "", "secret1", false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing email: expected validation error, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "ana@x.com", "", false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing password: expected validation error, got %v", err)
	}

	_, wrongErr := f.svc.Login(ctx, "ana@x.com", "nope-nope", false)
	_, unknownErr := f.svc.Login(ctx, "bob@x.com", "secret1", false)
	if !errors.Is(wrongErr, domain.ErrAuthentication) || !errors.Is(unknownErr, domain.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for both, got %v and %v", wrongErr, unknownErr)
	}
	if wrongErr.Error() != unknownErr.Error() {
		t.Fatalf("wrong password and unknown email must look identical: %q vs %q", wrongErr, unknownErr)
	}

	if _, err := f.store.SetStatus(ctx, reg.User.ID, domain.StatusDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.svc.Login(ctx, "ana@x.com", "secret1", false); !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("disabled account: expected ErrAuthentication, got %v", err)
	}
}

func TestAuthService_Login_RememberMe(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	_, _ = f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	res, err := f.svc.Login(ctx, "ana@x.com", "secret1", true)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := res.Token.ExpiresAt.Sub(f.clock.Now()); got != DefaultRememberTTL {
		t.Fatalf("expected %s session, got %s", DefaultRememberTTL, got)
	}
}

func TestAuthService_Status(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})

	t.Run("fresh token is not refreshed", func(t *testing.T) {
		res, err := f.svc.Status(ctx, reg.Token.Value)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if res.Refreshed {
			t.Fatalf("fresh token must not be refreshed")
		}
		if res.User.ID != reg.User.ID {
			t.Fatalf("unexpected user %+v", res.User)
		}
		if !res.ExpiresAt().Equal(reg.Token.ExpiresAt) {
			t.Fatalf("expected original expiry")
		}
	})

	t.Run("near expiry is refreshed with the same lifetime", func(t *testing.T) {
		f.clock.Advance(DefaultSessionTTL - 10*time.Minute)
		res, err := f.svc.Status(ctx, reg.Token.Value)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if !res.Refreshed {
			t.Fatalf("expected refresh inside the window")
		}
		if got := res.Token.ExpiresAt.Sub(f.clock.Now()); got != DefaultSessionTTL {
			t.Fatalf("expected refreshed lifetime %s, got %s", DefaultSessionTTL, got)
		}
		if !res.ExpiresAt().Equal(res.Token.ExpiresAt) {
			t.Fatalf("ExpiresAt must follow the refreshed token")
		}
	})

	t.Run("expired token is invalid", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		_, err := f.svc.Status(ctx, reg.Token.Value)
		if !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})
}

func TestAuthService_Status_RefreshCarriesProfileChanges(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	name := "Ana Maria"
	if _, err := f.svc.UpdateProfile(ctx, reg.User.ID, domain.UserPatch{Name: &name}); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	f.clock.Advance(DefaultSessionTTL - time.Minute)
	res, err := f.svc.Status(ctx, reg.Token.Value)
	if err != nil || !res.Refreshed {
		t.Fatalf("expected refresh, got %+v %v", res, err)
	}
	claims, err := f.tokens.Verify(res.Token.Value)
	if err != nil {
		t.Fatalf("verify refreshed: %v", err)
	}
	if claims.Name != "Ana Maria" {
		t.Fatalf("refreshed token should carry the new name, got %q", claims.Name)
	}
}

func TestAuthService_Status_Rejections(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Status(ctx, ""); !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := f.svc.Status(ctx, "not.a.jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	other, _ := token.NewManager("other-secret", token.WithClock(f.clock.Now))
	forged, _ := other.Issue(domain.Identity{UserID: "x", Email: "x@x.com"}, time.Hour)
	if _, err := f.svc.Status(ctx, forged.Value); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign signature, got %v", err)
	}

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	if _, err := f.store.SetStatus(ctx, reg.User.ID, domain.StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.svc.Status(ctx, reg.Token.Value); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization for suspended account, got %v", err)
	}

	bob, _ := f.svc.Register(ctx, domain.NewUser{Name: "Bob", Email: "bob@x.com", Password: "secret1"})
	if err := f.store.Delete(ctx, bob.User.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Status(ctx, bob.Token.Value); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for deleted user, got %v", err)
	}
}

func TestAuthService_Authenticate_ResolvesAccount(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	email := "ana.maria@x.com"
	if _, err := f.svc.UpdateProfile(ctx, reg.User.ID, domain.UserPatch{Email: &email}); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	claims, err := f.svc.Authenticate(ctx, reg.Token.Value)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.UserID != reg.User.ID || claims.Email != "ana.maria@x.com" {
		t.Fatalf("claims should follow the stored account, got %+v", claims.Identity)
	}

	for _, status := range []domain.UserStatus{domain.StatusDisabled, domain.StatusSuspended} {
		if _, err := f.store.SetStatus(ctx, reg.User.ID, status); err != nil {
			t.Fatalf("set %s: %v", status, err)
		}
		if _, err := f.svc.Authenticate(ctx, reg.Token.Value); !errors.Is(err, domain.ErrAuthorization) {
			t.Fatalf("%s: expected ErrAuthorization, got %v", status, err)
		}
	}

	if _, err := f.store.SetStatus(ctx, reg.User.ID, domain.StatusActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, reg.Token.Value); err != nil {
		t.Fatalf("reactivated account: %v", err)
	}

	if err := f.store.Delete(ctx, reg.User.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, reg.Token.Value); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("deleted account: expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthService_Logout_WithoutDenylistKeepsTokenValid(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	if err := f.svc.Logout(ctx, reg.Token.Value); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Status(ctx, reg.Token.Value); err != nil {
		t.Fatalf("stateless logout must not revoke: %v", err)
	}
}

func TestAuthService_Logout_RevokesWithDenylist(t *testing.T) {
	deny := newStubDenylist()
	f := newAuthFixture(t, deny)
	ctx := context.Background()

	reg, _ := f.svc.Register(ctx, domain.NewUser{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	if err := f.svc.Logout(ctx, reg.Token.Value); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Status(ctx, reg.Token.Value); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}

	// garbage and empty tokens are ignored
	if err := f.svc.Logout(ctx, ""); err != nil {
		t.Fatalf("empty logout: %v", err)
	}
	if err := f.svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("garbage logout: %v", err)
	}

	login, _ := f.svc.Login(ctx, "ana@x.com", "secret1", false)
	deny.err = errors.New("redis down")
	if _, err := f.svc.Authenticate(ctx, login.Token.Value); err == nil || errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("denylist outage should surface as an internal error, got %v", err)
	}
}
