package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/core/domain"
)

func TestAdminOnly_Allows(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ClaimsKey, &domain.SessionClaims{Identity: domain.Identity{UserID: "u1", Email: "root@x.com"}})

	called := false
	mw := AdminOnly(" u1 ", "u9")
	handler := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminOnly_Forbids(t *testing.T) {
	// Only the id counts; an email a caller chose for itself grants nothing.
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ClaimsKey, &domain.SessionClaims{Identity: domain.Identity{UserID: "u2", Email: "root@x.com"}})

	mw := AdminOnly("u1")
	handler := mw(func(c echo.Context) error {
		t.Fatalf("next handler should not be called")
		return nil
	})

	if err := handler(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAdminOnly_EmptyListClosesSurface(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(ClaimsKey, &domain.SessionClaims{Identity: domain.Identity{UserID: "u1", Email: "root@x.com"}})

	err := AdminOnly()(func(echo.Context) error { return nil })(c)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAdminOnly_RequiresAuth(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := AdminOnly("u1")(func(echo.Context) error { return nil })(c)
	if !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
