// Package file persists users as a single JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
)

type document struct {
	Users []domain.User `json:"users"`
}

// UserRepository keeps the full table in memory and rewrites the file on
// every mutation via write-to-temp and rename.
type UserRepository struct {
	path string
	log  zerolog.Logger
	now  func() time.Time

	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

func NewUserRepository(path string, log zerolog.Logger) *UserRepository {
	return &UserRepository{
		path:    path,
		log:     log.With().Str("component", "file_user_repository").Str("path", path).Logger(),
		now:     time.Now,
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Init loads the file, creating it when missing. A file that cannot be
// parsed is moved aside to <path>.corrupt-<unix>.bak and replaced with an
// empty table.
func (r *UserRepository) Init(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return r.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("read user file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d.bak", r.path, r.now().Unix())
		if renameErr := os.Rename(r.path, backup); renameErr != nil {
			return fmt.Errorf("back up corrupt user file: %w", renameErr)
		}
		r.log.Warn().Err(err).Str("backup", backup).Msg("user file corrupt, starting with an empty store")
		return r.persistLocked()
	}

	for i := range doc.Users {
		u := doc.Users[i]
		r.byID[u.ID] = &u
		r.byEmail[u.Email] = u.ID
	}
	r.log.Debug().Int("users", len(doc.Users)).Msg("user file loaded")
	return nil
}

func (r *UserRepository) Ping(context.Context) error {
	_, err := os.Stat(r.path)
	return err
}

func (r *UserRepository) Close() error { return nil }

func (r *UserRepository) Insert(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrUserExists
	}
	r.byID[user.ID] = user.Clone()
	r.byEmail[user.Email] = user.ID
	if err := r.persistLocked(); err != nil {
		delete(r.byID, user.ID)
		delete(r.byEmail, user.Email)
		return err
	}
	return nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return domain.ErrUserExists
	}

	delete(r.byEmail, current.Email)
	r.byID[user.ID] = user.Clone()
	r.byEmail[user.Email] = user.ID
	if err := r.persistLocked(); err != nil {
		delete(r.byEmail, user.Email)
		r.byID[user.ID] = current
		r.byEmail[current.Email] = current.ID
		return err
	}
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, current.Email)
	if err := r.persistLocked(); err != nil {
		r.byID[id] = current
		r.byEmail[current.Email] = id
		return err
	}
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) List(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, *u.Clone())
	}
	return out, nil
}

// persistLocked writes the table atomically. Callers hold r.mu.
func (r *UserRepository) persistLocked() error {
	doc := document{Users: make([]domain.User, 0, len(r.byID))}
	for _, u := range r.byID {
		doc.Users = append(doc.Users, *u)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "encode", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return &domain.StorageError{Op: "create temp", Err: err}
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &domain.StorageError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.StorageError{Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return &domain.StorageError{Op: "rename", Err: err}
	}
	return nil
}

var _ ports.UserRepository = (*UserRepository)(nil)
