package domain

import "time"

// Identity is the user-facing subset bound into a session token.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	Identity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Lifetime is the duration the token was originally issued for.
func (c SessionClaims) Lifetime() time.Duration {
	return c.ExpiresAt.Sub(c.IssuedAt)
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
	TTL       time.Duration
}
