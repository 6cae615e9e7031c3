package ports

import (
	"context"
	"time"

	"github.com/aifix/chat-auth/internal/core/domain"
)

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(identity domain.Identity, ttl time.Duration) (domain.IssuedToken, error)
	Verify(raw string) (*domain.SessionClaims, error)
	MaybeRefresh(claims *domain.SessionClaims, window time.Duration) (domain.IssuedToken, bool, error)
}

// TokenDenylist records tokens revoked before their natural expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
