package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

// ClaimsKey is the echo context key holding *domain.SessionClaims.
const ClaimsKey = "session_claims"

// Authenticator verifies a raw session token.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*domain.SessionClaims, error)
}

// Auth extracts the session token (cookie, then bearer header, then query),
// verifies it and injects the claims into the context. Failures are returned
// to the error handler, which renders the no_token / token_invalid codes.
func Auth(authn Authenticator, extract token.Extractor) echo.MiddlewareFunc {
	if extract == nil {
		extract = token.DefaultExtractor()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authn.Authenticate(c.Request().Context(), extract(c.Request()))
			if err != nil {
				return err
			}
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// Claims returns the claims injected by Auth, or nil.
func Claims(c echo.Context) *domain.SessionClaims {
	claims, _ := c.Get(ClaimsKey).(*domain.SessionClaims)
	return claims
}
