package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Keys written to every Persistence adapter.
const (
	KeyUser        = "aichat_user"
	KeyToken       = "aichat_token"
	KeyTokenExpiry = "aichat_token_expiry"
	KeyRedirect    = "aichat_redirect"
)

// Persistence is a flat string key/value store holding client session state.
type Persistence interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// State is the locally held authentication state.
type State struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Session mirrors State into a durable and a session-scoped store.
// Reads prefer the session-scoped copy.
type Session struct {
	durable Persistence
	scoped  Persistence
}

// NewSession returns a Session over the two adapters. Either may be nil.
func NewSession(durable, scoped Persistence) *Session {
	return &Session{durable: durable, scoped: scoped}
}

func (s *Session) stores() []Persistence {
	out := make([]Persistence, 0, 2)
	if s.scoped != nil {
		out = append(out, s.scoped)
	}
	if s.durable != nil {
		out = append(out, s.durable)
	}
	return out
}

// Save writes st to both stores.
func (s *Session) Save(st State) error {
	raw, err := json.Marshal(st.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	expiry := strconv.FormatInt(st.ExpiresAt.UnixMilli(), 10)

	var errs []error
	for _, p := range s.stores() {
		errs = append(errs,
			p.Set(KeyUser, string(raw)),
			p.Set(KeyToken, st.Token),
			p.Set(KeyTokenExpiry, expiry),
		)
	}
	return errors.Join(errs...)
}

// Load returns the first complete state found. Incomplete or unreadable
// entries are skipped.
func (s *Session) Load() (State, bool) {
	for _, p := range s.stores() {
		rawUser, ok1 := p.Get(KeyUser)
		tok, ok2 := p.Get(KeyToken)
		rawExp, ok3 := p.Get(KeyTokenExpiry)
		if !ok1 || !ok2 || !ok3 || tok == "" {
			continue
		}
		var u User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil || u.ID == "" {
			continue
		}
		ms, err := strconv.ParseInt(rawExp, 10, 64)
		if err != nil {
			continue
		}
		return State{User: &u, Token: tok, ExpiresAt: time.UnixMilli(ms)}, true
	}
	return State{}, false
}

// Clear removes the auth keys from both stores. A pending redirect survives.
func (s *Session) Clear() error {
	var errs []error
	for _, p := range s.stores() {
		errs = append(errs,
			p.Delete(KeyUser),
			p.Delete(KeyToken),
			p.Delete(KeyTokenExpiry),
		)
	}
	return errors.Join(errs...)
}

// SetRedirect records where to go after the next login.
func (s *Session) SetRedirect(location string) error {
	var errs []error
	for _, p := range s.stores() {
		errs = append(errs, p.Set(KeyRedirect, location))
	}
	return errors.Join(errs...)
}

// TakeRedirect returns and forgets the recorded post-login location.
func (s *Session) TakeRedirect() (string, bool) {
	var (
		loc   string
		found bool
	)
	for _, p := range s.stores() {
		if v, ok := p.Get(KeyRedirect); ok && !found {
			loc, found = v, true
		}
		_ = p.Delete(KeyRedirect)
	}
	return loc, found
}

// MemoryStorage is a process-lifetime Persistence.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// FileStorage is a Persistence backed by a JSON object on disk. Every
// mutation rewrites the file atomically with owner-only permissions.
type FileStorage struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// NewFileStorage opens path, creating parent directories as needed. A
// missing file starts empty.
func NewFileStorage(path string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	fs := &FileStorage{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fs.data); err != nil {
			return nil, fmt.Errorf("decode session file %s: %w", path, err)
		}
	}
	return fs, nil
}

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return f.flush()
}

func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flush()
}

// flush must be called with mu held.
func (f *FileStorage) flush() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
