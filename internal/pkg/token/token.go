// Package token issues and verifies the signed session tokens that carry a
// user's identity between requests.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
)

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token has expired")
	ErrMalformed        = errors.New("token is malformed")
)

// State classifies a verified token relative to a refresh window.
type State int

const (
	StateValid State = iota
	StateNearExpiry
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateNearExpiry:
		return "near_expiry"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Manager signs HS256 tokens with a shared server secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the time source, used for expiry checks and issuance.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	m := &Manager{secret: []byte(secret), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Issue signs a token for identity that expires ttl from now.
func (m *Manager) Issue(identity domain.Identity, ttl time.Duration) (domain.IssuedToken, error) {
	if ttl <= 0 {
		return domain.IssuedToken{}, fmt.Errorf("token: ttl must be positive, got %s", ttl)
	}
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	c := claims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("token: sign: %w", err)
	}
	return domain.IssuedToken{Value: signed, ExpiresAt: expiresAt, TTL: ttl}, nil
}

// Verify checks the signature first and expiry second.
func (m *Manager) Verify(raw string) (*domain.SessionClaims, error) {
	c := &claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	tkn, err := parser.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	if !tkn.Valid || c.Subject == "" || c.IssuedAt == nil {
		return nil, ErrMalformed
	}

	return &domain.SessionClaims{
		Identity: domain.Identity{
			UserID: c.Subject,
			Email:  c.Email,
			Name:   c.Name,
		},
		TokenID:   c.ID,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// State reports where claims sit relative to window.
func (m *Manager) State(c *domain.SessionClaims, window time.Duration) State {
	remaining := c.ExpiresAt.Sub(m.now())
	switch {
	case remaining <= 0:
		return StateExpired
	case remaining < window:
		return StateNearExpiry
	default:
		return StateValid
	}
}

// MaybeRefresh reissues the token with the same identity and original
// lifetime when fewer than window remain before expiry.
func (m *Manager) MaybeRefresh(c *domain.SessionClaims, window time.Duration) (domain.IssuedToken, bool, error) {
	if m.State(c, window) != StateNearExpiry {
		return domain.IssuedToken{}, false, nil
	}
	ttl := c.Lifetime()
	if ttl <= 0 {
		return domain.IssuedToken{}, false, ErrMalformed
	}
	t, err := m.Issue(c.Identity, ttl)
	if err != nil {
		return domain.IssuedToken{}, false, err
	}
	return t, true, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}

var _ ports.TokenIssuer = (*Manager)(nil)
