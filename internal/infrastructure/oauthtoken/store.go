package oauthtoken

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached access token with its absolute expiry.
type Entry struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// Store persists entries by key. Get reports found=false for a miss.
type Store interface {
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps entries in process memory. It is the default store for a
// single instance deployment.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
