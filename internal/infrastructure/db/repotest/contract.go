// Package repotest holds the behavioural contract every ports.UserRepository
// implementation must satisfy. Backend packages call Run from their tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
)

// Factory returns an initialised, empty repository. Cleanup is the factory's job.
type Factory func(t *testing.T) ports.UserRepository

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewUser builds a valid record with a fresh id.
func NewUser(email string) *domain.User {
	return &domain.User{
		ID:           uuid.NewString(),
		Name:         "User " + email,
		Email:        email,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuv",
		Status:       domain.StatusActive,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}

// Run executes the contract against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("insert and find", func(t *testing.T) { testInsertAndFind(t, newRepo(t)) })
	t.Run("duplicate email", func(t *testing.T) { testDuplicateEmail(t, newRepo(t)) })
	t.Run("concurrent duplicate insert", func(t *testing.T) { testConcurrentInsert(t, newRepo(t)) })
	t.Run("update", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("update email collision", func(t *testing.T) { testUpdateCollision(t, newRepo(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("list", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, newRepo(t).Ping(context.Background())) })
}

func testInsertAndFind(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	u := NewUser("ana@x.com")
	require.NoError(t, repo.Insert(ctx, u))

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assertSameUser(t, u, byID)

	byEmail, err := repo.FindByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func testDuplicateEmail(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, NewUser("ana@x.com")))

	err := repo.Insert(ctx, NewUser("ana@x.com"))
	assert.ErrorIs(t, err, domain.ErrUserExists)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func testConcurrentInsert(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Insert(ctx, NewUser("race@x.com"))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrUserExists)
	}
	assert.Equal(t, 1, ok, "exactly one insert should win")
}

func testUpdate(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	u := NewUser("ana@x.com")
	require.NoError(t, repo.Insert(ctx, u))

	login := baseTime.Add(time.Hour)
	u.Name = "Ana Maria"
	u.Email = "ana.m@x.com"
	u.Status = domain.StatusSuspended
	u.LastLoginAt = &login
	u.LoginCount = 3
	u.UpdatedAt = login
	require.NoError(t, repo.Update(ctx, u))

	got, err := repo.FindByEmail(ctx, "ana.m@x.com")
	require.NoError(t, err)
	assertSameUser(t, u, got)

	_, err = repo.FindByEmail(ctx, "ana@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound, "old email must be released")

	ghost := NewUser("ghost@x.com")
	assert.ErrorIs(t, repo.Update(ctx, ghost), domain.ErrUserNotFound)
}

func testUpdateCollision(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	ana := NewUser("ana@x.com")
	bob := NewUser("bob@x.com")
	require.NoError(t, repo.Insert(ctx, ana))
	require.NoError(t, repo.Insert(ctx, bob))

	bob.Email = "ana@x.com"
	assert.ErrorIs(t, repo.Update(ctx, bob), domain.ErrUserExists)

	got, err := repo.FindByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", got.Email)
}

func testDelete(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()
	u := NewUser("ana@x.com")
	require.NoError(t, repo.Insert(ctx, u))

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err := repo.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.FindByEmail(ctx, u.Email)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, u.ID), domain.ErrUserNotFound)

	// the email can be reused
	require.NoError(t, repo.Insert(ctx, NewUser("ana@x.com")))
}

func testList(t *testing.T, repo ports.UserRepository) {
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	for _, e := range want {
		require.NoError(t, repo.Insert(ctx, NewUser(e)))
	}

	users, err := repo.List(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(users))
	for _, u := range users {
		got = append(got, u.Email)
		assert.NotEmpty(t, u.PasswordHash, "backends store the full record")
	}
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func assertSameUser(t *testing.T, want, got *domain.User) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.LoginCount, got.LoginCount)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %s got %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %s got %s", want.UpdatedAt, got.UpdatedAt)
	if want.LastLoginAt == nil {
		assert.Nil(t, got.LastLoginAt)
	} else if assert.NotNil(t, got.LastLoginAt) {
		assert.True(t, want.LastLoginAt.Equal(*got.LastLoginAt))
	}
}
