package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/pkg/password"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	updateErr error
	listErr   error
	lists     int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func (r *stubUserRepo) Init(context.Context) error { return nil }
func (r *stubUserRepo) Ping(context.Context) error { return nil }
func (r *stubUserRepo) Close() error               { return nil }

func (r *stubUserRepo) Insert(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return domain.ErrUserExists
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *stubUserRepo) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	for _, existing := range r.users {
		if existing.ID != u.ID && existing.Email == u.Email {
			return domain.ErrUserExists
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) List(context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u.Clone())
	}
	return out, nil
}

// mutate edits a stored record behind the store's back.
func (r *stubUserRepo) mutate(id string, fn func(*domain.User)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.users[id])
}

// lockedWrites serializes every job behind one mutex.
type lockedWrites struct{ mu sync.Mutex }

func (w *lockedWrites) Do(ctx context.Context, _ string, job func(ctx context.Context) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return job(ctx)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---------------------------------------------------------------------------
// Helper: build a store over a fresh stub backend.
// ---------------------------------------------------------------------------

func newTestStore(t *testing.T) (*UserStore, *stubUserRepo, *testClock) {
	t.Helper()
	repo := newStubUserRepo()
	clk := newTestClock()
	store, err := NewUserStore(StoreConfig{
		Backend:     repo,
		BackendName: "stub",
		Hasher:      password.NewBcryptHasher(bcrypt.MinCost),
		Writes:      &lockedWrites{},
		Logger:      zerolog.Nop(),
		Now:         clk.Now,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store, repo, clk
}
