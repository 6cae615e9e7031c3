package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
	"github.com/aifix/chat-auth/internal/pkg/metrics"
	"github.com/aifix/chat-auth/internal/pkg/password"
)

const (
	// DefaultCacheTTL is the read cache window.
	DefaultCacheTTL = 60 * time.Second
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
)

// WriteSerializer runs store mutations one key at a time.
type WriteSerializer interface {
	Do(ctx context.Context, key string, job func(ctx context.Context) error) error
}

// StoreConfig carries the injected dependencies of a UserStore.
type StoreConfig struct {
	Backend     ports.UserRepository
	BackendName string
	Hasher      password.Hasher
	Writes      WriteSerializer
	CacheTTL    time.Duration
	Logger      zerolog.Logger
	Now         func() time.Time
}

// UserStore is the credential store: validated CRUD over a pluggable backend
// with a time-windowed read cache. Every value it returns is sanitized.
type UserStore struct {
	backend     ports.UserRepository
	backendName string
	hasher      password.Hasher
	writes      WriteSerializer
	cacheTTL    time.Duration
	log         zerolog.Logger
	now         func() time.Time
	validate    *validator.Validate

	mu    sync.RWMutex
	cache *snapshot
}

type snapshot struct {
	byID     map[string]*domain.User
	byEmail  map[string]*domain.User
	loadedAt time.Time
}

// NewUserStore builds a store. Backend, Hasher and Writes are required.
func NewUserStore(cfg StoreConfig) (*UserStore, error) {
	if cfg.Backend == nil || cfg.Hasher == nil || cfg.Writes == nil {
		return nil, errors.New("user store: backend, hasher and write serializer are required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BackendName == "" {
		cfg.BackendName = "unknown"
	}
	return &UserStore{
		backend:     cfg.Backend,
		backendName: cfg.BackendName,
		hasher:      cfg.Hasher,
		writes:      cfg.Writes,
		cacheTTL:    cfg.CacheTTL,
		log:         cfg.Logger.With().Str("component", "user_store").Str("backend", cfg.BackendName).Logger(),
		now:         cfg.Now,
		validate:    validator.New(),
	}, nil
}

// Init prepares the backend and warms the cache.
func (s *UserStore) Init(ctx context.Context) error {
	if err := s.backend.Init(ctx); err != nil {
		return fmt.Errorf("init user backend: %w", err)
	}
	if _, err := s.reload(ctx); err != nil {
		return fmt.Errorf("warm user cache: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *UserStore) Close() error {
	s.invalidate()
	return s.backend.Close()
}

// Ping checks backend connectivity.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Exists reports whether an account uses email.
func (s *UserStore) Exists(ctx context.Context, email string, opts ...ports.ReadOption) (bool, error) {
	u, err := s.findByEmail(ctx, domain.NormalizeEmail(email), ports.ResolveReadOptions(opts))
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// GetByEmail looks a user up by any casing of their email.
func (s *UserStore) GetByEmail(ctx context.Context, email string, opts ...ports.ReadOption) (*domain.UserView, error) {
	u, err := s.findByEmail(ctx, domain.NormalizeEmail(email), ports.ResolveReadOptions(opts))
	if err != nil {
		return nil, err
	}
	return u.View(), nil
}

// GetByID returns the sanitized user with id.
func (s *UserStore) GetByID(ctx context.Context, id string, opts ...ports.ReadOption) (*domain.UserView, error) {
	u, err := s.findByID(ctx, id, ports.ResolveReadOptions(opts))
	if err != nil {
		return nil, err
	}
	return u.View(), nil
}

// List returns every user ordered by creation time.
func (s *UserStore) List(ctx context.Context, opts ...ports.ReadOption) ([]domain.UserView, error) {
	snap, err := s.read(ctx, ports.ResolveReadOptions(opts))
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserView, 0, len(snap.byID))
	for _, u := range snap.byID {
		out = append(out, *u.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create validates and stores a new active account.
func (s *UserStore) Create(ctx context.Context, in domain.NewUser) (*domain.UserView, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)

	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if err := s.validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.writes.Do(ctx, email, func(ctx context.Context) error {
		// Fresh read: the cache may predate a concurrent registration.
		if _, err := s.fetchByEmail(ctx, email); err == nil {
			return domain.ErrUserExists
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return s.timed("insert", func() error { return s.backend.Insert(ctx, user) })
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx)
	s.log.Info().Str("user_id", user.ID).Msg("user created")
	return user.View(), nil
}

// Update applies a profile patch. Changing email re-checks uniqueness.
func (s *UserStore) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.UserView, error) {
	var name, email string
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "name is required")
		}
	}
	if patch.Email != nil {
		email = domain.NormalizeEmail(*patch.Email)
		if err := s.validateEmail(email); err != nil {
			return nil, err
		}
	}

	var updated *domain.User
	err := s.writes.Do(ctx, id, func(ctx context.Context) error {
		current, err := s.fetchByID(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if patch.Name != nil {
			next.Name = name
		}
		if patch.Email != nil && email != current.Email {
			if other, err := s.fetchByEmail(ctx, email); err == nil && other.ID != id {
				return domain.ErrUserExists
			} else if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
				return err
			}
			next.Email = email
		}
		next.UpdatedAt = s.now().UTC()
		if err := s.timed("update", func() error { return s.backend.Update(ctx, next) }); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx)
	return updated.View(), nil
}

// Delete removes the user outright.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	err := s.writes.Do(ctx, id, func(ctx context.Context) error {
		return s.timed("delete", func() error { return s.backend.Delete(ctx, id) })
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx)
	s.log.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// VerifyCredentials returns the user when email and password match an
// active account, and (nil, nil) otherwise. Unknown email, inactive status
// and wrong password are indistinguishable to the caller.
func (s *UserStore) VerifyCredentials(ctx context.Context, email, plaintext string) (*domain.UserView, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, nil
	}

	user, err := s.findByEmail(ctx, email, ports.ReadOptions{})
	if errors.Is(err, domain.ErrUserNotFound) {
		// Burn a hash so unknown emails cost roughly as much as known ones.
		_, _ = s.hasher.Hash(plaintext)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password digest unreadable")
		return nil, nil
	}
	if !ok || !user.Status.CanLogin() {
		return nil, nil
	}

	view := s.recordLogin(ctx, user)
	return view, nil
}

// recordLogin bumps login bookkeeping. Failures never fail the login.
func (s *UserStore) recordLogin(ctx context.Context, user *domain.User) *domain.UserView {
	var bumped *domain.User
	err := s.writes.Do(ctx, user.ID, func(ctx context.Context) error {
		current, err := s.fetchByID(ctx, user.ID)
		if err != nil {
			return err
		}
		next := current.Clone()
		now := s.now().UTC()
		next.LastLoginAt = &now
		next.LoginCount++
		if err := s.timed("update", func() error { return s.backend.Update(ctx, next) }); err != nil {
			return err
		}
		bumped = next
		return nil
	})
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("login_bump").Inc()
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login")
		return user.View()
	}
	s.afterWrite(ctx)
	return bumped.View()
}

// ResetPassword replaces the password of the account using email. The job
// is keyed by the account id like every other mutation of an existing record.
func (s *UserStore) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = domain.NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return err
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	owner, err := s.fetchByEmail(ctx, email)
	if err != nil {
		return err
	}

	err = s.writes.Do(ctx, owner.ID, func(ctx context.Context) error {
		current, err := s.fetchByID(ctx, owner.ID)
		if err != nil {
			return err
		}
		if current.Email != email {
			// The address moved away while the job was queued.
			return domain.ErrUserNotFound
		}
		next := current.Clone()
		next.PasswordHash = hash
		next.UpdatedAt = s.now().UTC()
		return s.timed("update", func() error { return s.backend.Update(ctx, next) })
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx)
	return nil
}

// SetStatus moves the account into status.
func (s *UserStore) SetStatus(ctx context.Context, id string, status domain.UserStatus) (*domain.UserView, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("status must be one of: %s, %s, %s",
			domain.StatusActive, domain.StatusDisabled, domain.StatusSuspended))
	}

	var updated *domain.User
	err := s.writes.Do(ctx, id, func(ctx context.Context) error {
		current, err := s.fetchByID(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		next.Status = status
		next.UpdatedAt = s.now().UTC()
		if err := s.timed("update", func() error { return s.backend.Update(ctx, next) }); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx)
	s.log.Info().Str("user_id", id).Str("status", string(status)).Msg("user status changed")
	return updated.View(), nil
}

// --- reads ---

func (s *UserStore) findByEmail(ctx context.Context, email string, ro ports.ReadOptions) (*domain.User, error) {
	if ro.SkipCache {
		metrics.StoreCacheTotal.WithLabelValues("bypass").Inc()
		return s.fetchByEmail(ctx, email)
	}
	snap, err := s.read(ctx, ro)
	if err != nil {
		return nil, err
	}
	u, ok := snap.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *UserStore) findByID(ctx context.Context, id string, ro ports.ReadOptions) (*domain.User, error) {
	if ro.SkipCache {
		metrics.StoreCacheTotal.WithLabelValues("bypass").Inc()
		return s.fetchByID(ctx, id)
	}
	snap, err := s.read(ctx, ro)
	if err != nil {
		return nil, err
	}
	u, ok := snap.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *UserStore) fetchByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u *domain.User
	err := s.timed("find_by_email", func() (err error) {
		u, err = s.backend.FindByEmail(ctx, email)
		return err
	})
	return u, err
}

func (s *UserStore) fetchByID(ctx context.Context, id string) (*domain.User, error) {
	var u *domain.User
	err := s.timed("find_by_id", func() (err error) {
		u, err = s.backend.FindByID(ctx, id)
		return err
	})
	return u, err
}

// read returns the cached snapshot while it is inside the cache window.
func (s *UserStore) read(ctx context.Context, ro ports.ReadOptions) (*snapshot, error) {
	if !ro.SkipCache {
		s.mu.RLock()
		snap := s.cache
		s.mu.RUnlock()
		if snap != nil && s.now().Sub(snap.loadedAt) < s.cacheTTL {
			metrics.StoreCacheTotal.WithLabelValues("hit").Inc()
			return snap, nil
		}
		metrics.StoreCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.StoreCacheTotal.WithLabelValues("bypass").Inc()
	}
	return s.reload(ctx)
}

func (s *UserStore) reload(ctx context.Context) (*snapshot, error) {
	var users []domain.User
	err := s.timed("list", func() (err error) {
		users, err = s.backend.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		byID:     make(map[string]*domain.User, len(users)),
		byEmail:  make(map[string]*domain.User, len(users)),
		loadedAt: s.now(),
	}
	for i := range users {
		u := &users[i]
		snap.byID[u.ID] = u
		snap.byEmail[u.Email] = u
	}

	s.mu.Lock()
	s.cache = snap
	s.mu.Unlock()
	return snap, nil
}

func (s *UserStore) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// afterWrite drops the cache and eagerly reloads it. The write already
// happened, so the reload ignores caller cancellation. A failed reload is not
// an error: the next read retries.
func (s *UserStore) afterWrite(ctx context.Context) {
	s.invalidate()
	if _, err := s.reload(context.WithoutCancel(ctx)); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("cache_reload").Inc()
		s.log.Warn().Err(err).Msg("cache refresh after write failed")
	}
}

func (s *UserStore) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StoreOperationDuration.WithLabelValues(s.backendName, op).Observe(time.Since(start).Seconds())
	return err
}

// --- validation ---

func (s *UserStore) validateEmail(email string) error {
	if email == "" {
		return domain.NewValidationError("email", "email is required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return domain.NewValidationError("email", "email must be a valid email")
	}
	return nil
}

func (s *UserStore) validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return domain.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if limit := s.hasher.MaxLength(); limit > 0 && len(pw) > limit {
		return domain.NewValidationError("password", fmt.Sprintf("password must be at most %d bytes", limit))
	}
	return nil
}

var _ ports.UserAdmin = (*UserStore)(nil)
