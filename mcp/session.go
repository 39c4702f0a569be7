package mcp

import "sync"

// SessionStore maps a user id to their tool-invocation session id. Sessions
// live until an explicit reset; they never expire on their own.
type SessionStore interface {
	Get(userID string) (string, bool)
	Set(userID, sessionID string)
	Delete(userID string)
}

// MemorySessionStore is the process-wide in-memory implementation.
type MemorySessionStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{m: map[string]string{}}
}

func (s *MemorySessionStore) Get(userID string) (string, bool) {
	s.mu.RLock()
	id, ok := s.m[userID]
	s.mu.RUnlock()
	return id, ok
}

func (s *MemorySessionStore) Set(userID, sessionID string) {
	s.mu.Lock()
	s.m[userID] = sessionID
	s.mu.Unlock()
}

func (s *MemorySessionStore) Delete(userID string) {
	s.mu.Lock()
	delete(s.m, userID)
	s.mu.Unlock()
}
