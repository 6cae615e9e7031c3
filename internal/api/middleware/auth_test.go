package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

type stubAuthenticator struct {
	seen string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, raw string) (*domain.SessionClaims, error) {
	s.seen = raw
	switch raw {
	case "":
		return nil, domain.ErrNoToken
	case "good":
		return &domain.SessionClaims{Identity: domain.Identity{UserID: "u1", Email: "ana@x.com"}}, nil
	default:
		return nil, domain.ErrTokenInvalid
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	mw := Auth(&stubAuthenticator{}, nil)
	handler := mw(func(c echo.Context) error {
		called = true
		claims := Claims(c)
		if claims == nil || claims.UserID != "u1" {
			t.Fatalf("claims not set: %+v", claims)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := Auth(&stubAuthenticator{}, nil)
	err := mw(func(c echo.Context) error {
		t.Fatalf("next should not be called")
		return nil
	})(c)

	if !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?token=forged", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Auth(&stubAuthenticator{}, nil)(func(c echo.Context) error { return nil })(c)
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthMiddleware_CookieWinsOverHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	req.AddCookie(&http.Cookie{Name: token.CookieName, Value: "good"})
	req.Header.Set("Authorization", "Bearer header")
	c := e.NewContext(req, httptest.NewRecorder())

	authn := &stubAuthenticator{}
	if err := Auth(authn, nil)(func(c echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authn.seen != "good" {
		t.Fatalf("expected cookie token, got %q", authn.seen)
	}
}
