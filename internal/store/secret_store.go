package store

import (
	"context"
	"sync"
	"time"

	"kakioki/internal/domain"
)

type secretEntry struct {
	value   string
	expires time.Time
}

// MemorySecretStore keeps session secrets in process memory with expiry.
type MemorySecretStore struct {
	mu      sync.Mutex
	entries map[string]secretEntry
	now     func() time.Time
}

// NewMemorySecretStore returns an empty MemorySecretStore.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{entries: make(map[string]secretEntry), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *MemorySecretStore) WithClock(now func() time.Time) *MemorySecretStore {
	s.now = now
	return s
}

func (s *MemorySecretStore) Put(_ context.Context, key, secret string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = secretEntry{value: secret, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySecretStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemorySecretStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// NoopSecretStore never retains anything.
type NoopSecretStore struct{}

func (NoopSecretStore) Put(context.Context, string, string, time.Duration) error { return nil }
func (NoopSecretStore) Get(context.Context, string) (string, bool, error)        { return "", false, nil }
func (NoopSecretStore) Delete(context.Context, string) error                     { return nil }

var (
	_ domain.SecretStore = (*MemorySecretStore)(nil)
	_ domain.SecretStore = NoopSecretStore{}
)
