package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	username string
	expires  time.Time
}

// Memory keeps sessions in a map. Sessions are lost on restart and are not
// shared between instances; use Redis for that.
type Memory struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store whose sessions expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *Memory) Create(_ context.Context, username string) (string, error) {
	token := newToken()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	m.sessions[token] = memoryEntry{username: username, expires: m.now().Add(m.ttl)}
	return token, nil
}

func (m *Memory) Resolve(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	entry, ok := m.sessions[token]
	m.mu.RUnlock()

	if !ok || !m.now().Before(entry.expires) {
		return "", ErrNotFound
	}
	return entry.username, nil
}

func (m *Memory) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

// Close is a no-op; there is nothing to release.
func (m *Memory) Close() error { return nil }

// sweep drops expired entries. Called with mu held, on Create, so the map
// cannot grow without bound.
func (m *Memory) sweep() {
	now := m.now()
	for token, entry := range m.sessions {
		if !now.Before(entry.expires) {
			delete(m.sessions, token)
		}
	}
}
