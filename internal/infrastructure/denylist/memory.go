// Package denylist records session tokens revoked before they expire.
// Entries live only as long as the token they revoke.
package denylist

import (
	"context"
	"sync"
	"time"

	"github.com/aifix/chat-auth/internal/core/ports"
)

// Memory is a process-local denylist. Expired entries are swept lazily on
// Revoke.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]time.Time), now: now}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
		}
	}
	if now.Before(expiresAt) {
		m.entries[tokenID] = expiresAt
	}
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ ports.TokenDenylist = (*Memory)(nil)
