package memory

import (
	"context"
	"sync"

	"token-dashboard-sync/internal/storage"
)

// LastViewedStore is an in-memory implementation of storage.LastViewedStore.
type LastViewedStore struct {
	mu        sync.RWMutex
	byProfile map[string]string
}

// NewLastViewedStore creates a new in-memory last-viewed store.
func NewLastViewedStore() *LastViewedStore {
	return &LastViewedStore{byProfile: make(map[string]string)}
}

// Save records address as the last viewed token of profile.
func (s *LastViewedStore) Save(_ context.Context, profile, address string) error {
	if profile == "" || address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byProfile[profile] = address
	return nil
}

// Load returns the last viewed address of profile.
func (s *LastViewedStore) Load(_ context.Context, profile string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.byProfile[profile]
	if !ok {
		return "", storage.ErrNotFound
	}
	return address, nil
}

var _ storage.LastViewedStore = (*LastViewedStore)(nil)
