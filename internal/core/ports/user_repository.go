package ports

import (
	"context"

	"github.com/aifix/chat-auth/internal/core/domain"
)

// UserRepository is the persistence contract every user backend implements.
//
// Emails are stored already normalized. Insert and Update must enforce email
// uniqueness at the storage level and return domain.ErrUserExists on a clash.
// Lookups, Update and Delete return domain.ErrUserNotFound for unknown users.
type UserRepository interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Ping(ctx context.Context) error
	Close() error
}
