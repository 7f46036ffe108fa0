package session

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the session in process memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNotFound
	}
	s := *m.current
	s.User = cloneUser(m.current.User)
	return &s, nil
}

func (m *MemoryStore) Write(ctx context.Context, s *Session) error {
	if !s.Valid() {
		return ErrIncomplete
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *s
	stored.User = cloneUser(s.User)
	m.current = &stored
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	return nil
}
