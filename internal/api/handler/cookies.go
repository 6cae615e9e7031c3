package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

// CookiePolicy controls the session cookies written by the auth handlers.
type CookiePolicy struct {
	// Secure marks cookies HTTPS-only; enabled in production.
	Secure bool
}

// setSession writes the HTTP-only token cookie and the script-readable
// logged-in flag, both living as long as the token.
func (p CookiePolicy) setSession(c echo.Context, tok domain.IssuedToken) {
	maxAge := int(tok.TTL / time.Second)
	c.SetCookie(&http.Cookie{
		Name:     token.CookieName,
		Value:    tok.Value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     token.FlagCookieName,
		Value:    "true",
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  tok.ExpiresAt,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (p CookiePolicy) clearSession(c echo.Context) {
	for _, name := range []string{token.CookieName, token.FlagCookieName} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == token.CookieName,
			Secure:   p.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
