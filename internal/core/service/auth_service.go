package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
	"github.com/aifix/chat-auth/internal/pkg/metrics"
	"github.com/aifix/chat-auth/internal/pkg/token"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberTTL   = 30 * 24 * time.Hour
	DefaultRefreshWindow = 15 * time.Minute
)

// Credentials is the subset of the credential store the auth service needs.
type Credentials interface {
	Create(ctx context.Context, in domain.NewUser) (*domain.UserView, error)
	Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.UserView, error)
	GetByID(ctx context.Context, id string, opts ...ports.ReadOption) (*domain.UserView, error)
	VerifyCredentials(ctx context.Context, email, password string) (*domain.UserView, error)
}

// SessionPolicy controls token lifetimes.
type SessionPolicy struct {
	TTL           time.Duration
	RememberTTL   time.Duration
	RefreshWindow time.Duration
}

func (p SessionPolicy) withDefaults() SessionPolicy {
	if p.TTL <= 0 {
		p.TTL = DefaultSessionTTL
	}
	if p.RememberTTL <= 0 {
		p.RememberTTL = DefaultRememberTTL
	}
	if p.RefreshWindow <= 0 {
		p.RefreshWindow = DefaultRefreshWindow
	}
	return p
}

// AuthService implements registration, login and session status checks.
type AuthService struct {
	users    Credentials
	tokens   ports.TokenIssuer
	denylist ports.TokenDenylist
	policy   SessionPolicy
	log      zerolog.Logger
}

// NewAuthService wires the service. denylist may be nil, in which case
// tokens stay valid until their natural expiry.
func NewAuthService(users Credentials, tokens ports.TokenIssuer, denylist ports.TokenDenylist, policy SessionPolicy, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		denylist: denylist,
		policy:   policy.withDefaults(),
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

func (s *AuthService) Register(ctx context.Context, in domain.NewUser) (*ports.AuthResult, error) {
	user, err := s.users.Create(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		case errors.Is(err, domain.ErrUserExists):
			metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		default:
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("success").Inc()

	tok, err := s.issue(user, s.policy.TTL)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{User: user, Token: tok}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, remember bool) (*ports.AuthResult, error) {
	if domain.NormalizeEmail(email) == "" || password == "" {
		return nil, domain.NewValidationError("credentials", "email and password are required")
	}

	user, err := s.users.VerifyCredentials(ctx, email, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if user == nil {
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrAuthentication
	}

	ttl := s.policy.TTL
	if remember {
		ttl = s.policy.RememberTTL
	}
	tok, err := s.issue(user, ttl)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", user.ID).Bool("remember", remember).Msg("user logged in")
	return &ports.AuthResult{User: user, Token: tok}, nil
}

// Status verifies rawToken, resolves the current user and reissues the
// token when it is inside the refresh window.
func (s *AuthService) Status(ctx context.Context, rawToken string) (*ports.StatusResult, error) {
	claims, user, err := s.resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	res := &ports.StatusResult{User: user, Claims: claims}

	// claims already carry the stored identity, so profile edits reach the token.
	fresh, refreshed, err := s.tokens.MaybeRefresh(claims, s.policy.RefreshWindow)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("token refresh failed")
		return res, nil
	}
	if refreshed {
		metrics.TokenRefreshesTotal.Inc()
		res.Refreshed = true
		res.Token = fresh
	}
	return res, nil
}

// Authenticate verifies rawToken and resolves the account behind it. The
// returned claims carry the account's stored name and email. A deleted
// account yields ErrTokenInvalid and an inactive one ErrAuthorization.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*domain.SessionClaims, error) {
	claims, _, err := s.resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *AuthService) resolve(ctx context.Context, rawToken string) (*domain.SessionClaims, *domain.UserView, error) {
	claims, err := s.verify(ctx, rawToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		metrics.TokenRejectionsTotal.WithLabelValues("unknown_user").Inc()
		return nil, nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.Status.CanLogin() {
		metrics.TokenRejectionsTotal.WithLabelValues("inactive").Inc()
		return nil, nil, domain.ErrAuthorization
	}

	current := *claims
	current.Identity = domain.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}
	return &current, user, nil
}

// verify checks the signature, expiry and denylist of rawToken.
func (s *AuthService) verify(ctx context.Context, rawToken string) (*domain.SessionClaims, error) {
	if rawToken == "" {
		metrics.TokenRejectionsTotal.WithLabelValues("missing").Inc()
		return nil, domain.ErrNoToken
	}

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		metrics.TokenRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return nil, domain.ErrTokenInvalid
	}

	if s.denylist != nil && claims.TokenID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return nil, fmt.Errorf("check token denylist: %w", err)
		}
		if revoked {
			metrics.TokenRejectionsTotal.WithLabelValues("revoked").Inc()
			return nil, domain.ErrTokenInvalid
		}
	}
	return claims, nil
}

// Logout revokes rawToken when a denylist is configured. Missing or invalid
// tokens are not an error: logout is best-effort.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if s.denylist == nil || rawToken == "" {
		return nil
	}
	claims, err := s.tokens.Verify(rawToken)
	if err != nil || claims.TokenID == "" {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.log.Info().Str("user_id", claims.UserID).Msg("token revoked on logout")
	return nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch domain.UserPatch) (*domain.UserView, error) {
	return s.users.Update(ctx, userID, patch)
}

func (s *AuthService) issue(user *domain.UserView, ttl time.Duration) (domain.IssuedToken, error) {
	tok, err := s.tokens.Issue(domain.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, ttl)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "signature"
	default:
		return "malformed"
	}
}

var _ ports.AuthService = (*AuthService)(nil)
