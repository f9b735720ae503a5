package auth

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	owner     string
	expiresAt time.Time
}

// MemorySessionStore хранит сессии в памяти процесса.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemorySessionStore создаёт пустое хранилище сессий.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Add регистрирует сессию.
func (s *MemorySessionStore) Add(_ context.Context, jti, owner string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[jti] = memorySession{owner: owner, expiresAt: expiresAt}
	return nil
}

// Contains сообщает, действительна ли сессия. Истёкшие сессии удаляются.
func (s *MemorySessionStore) Contains(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, jti)
		return false, nil
	}
	return true, nil
}

// Remove удаляет сессию.
func (s *MemorySessionStore) Remove(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, jti)
	return nil
}

// RemoveOwner удаляет все сессии владельца.
func (s *MemorySessionStore) RemoveOwner(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, sess := range s.sessions {
		if sess.owner == owner {
			delete(s.sessions, jti)
		}
	}
	return nil
}
