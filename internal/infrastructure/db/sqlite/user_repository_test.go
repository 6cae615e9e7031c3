package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifix/chat-auth/internal/core/ports"
	"github.com/aifix/chat-auth/internal/infrastructure/db/repotest"
)

func openTestRepo(t *testing.T, path string) *UserRepository {
	t.Helper()
	db, err := Open(path)
	require.NoError(t, err)
	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) ports.UserRepository {
		return openTestRepo(t, filepath.Join(t.TempDir(), "users.db"))
	})
}

func TestUserRepository_InitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "users.db")

	repo := openTestRepo(t, path)
	u := repotest.NewUser("ana@x.com")
	require.NoError(t, repo.Insert(ctx, u))
	require.NoError(t, repo.Init(ctx))

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", got.Email)
}
