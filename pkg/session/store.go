package session

import "sync"

// Store holds the current access token. The browser keeps it in local
// storage under the single key "accessToken"; here the same slot lives
// behind an interface so tests can substitute their own.
//
// Only the Manager writes to the store.
type Store interface {
	Token() string
	SetToken(token string)
	Clear()
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
