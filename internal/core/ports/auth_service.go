package ports

import (
	"context"
	"time"

	"github.com/aifix/chat-auth/internal/core/domain"
)

// AuthResult is returned by a successful register or login.
type AuthResult struct {
	User  *domain.UserView
	Token domain.IssuedToken
}

// StatusResult describes the session behind a token.
type StatusResult struct {
	User      *domain.UserView
	Claims    *domain.SessionClaims
	Refreshed bool
	Token     domain.IssuedToken
}

// ExpiresAt is the expiry of the token the client should now hold.
func (r *StatusResult) ExpiresAt() time.Time {
	if r.Refreshed {
		return r.Token.ExpiresAt
	}
	return r.Claims.ExpiresAt
}

// AuthService is the session-facing use case layer consumed by HTTP handlers.
type AuthService interface {
	Register(ctx context.Context, in domain.NewUser) (*AuthResult, error)
	Login(ctx context.Context, email, password string, remember bool) (*AuthResult, error)
	Status(ctx context.Context, rawToken string) (*StatusResult, error)
	Authenticate(ctx context.Context, rawToken string) (*domain.SessionClaims, error)
	Logout(ctx context.Context, rawToken string) error
	UpdateProfile(ctx context.Context, userID string, patch domain.UserPatch) (*domain.UserView, error)
}

// UserAdmin exposes administrative account operations.
type UserAdmin interface {
	List(ctx context.Context, opts ...ReadOption) ([]domain.UserView, error)
	GetByID(ctx context.Context, id string, opts ...ReadOption) (*domain.UserView, error)
	SetStatus(ctx context.Context, id string, status domain.UserStatus) (*domain.UserView, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
	Delete(ctx context.Context, id string) error
}

// ReadOption tunes a credential store read.
type ReadOption func(*ReadOptions)

// ReadOptions is the resolved set of read options.
type ReadOptions struct {
	SkipCache bool
}

// SkipCache forces the read to go to the backend.
func SkipCache() ReadOption {
	return func(o *ReadOptions) { o.SkipCache = true }
}

// ResolveReadOptions applies opts over the defaults.
func ResolveReadOptions(opts []ReadOption) ReadOptions {
	var ro ReadOptions
	for _, o := range opts {
		o(&ro)
	}
	return ro
}
