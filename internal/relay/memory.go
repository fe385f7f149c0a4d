package relay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in test mode and tests
type MemoryStore struct {
	mu      sync.Mutex
	bundles map[string]Bundle
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]Bundle)}
}

// Create writes a new bundle
func (s *MemoryStore) Create(ctx context.Context, b Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bundles[b.ID]; exists {
		return ErrDuplicate
	}
	s.bundles[b.ID] = b
	return nil
}

// Consume checks and marks the bundle under one lock
func (s *MemoryStore) Consume(ctx context.Context, id string, now time.Time) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bundles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Used {
		return nil, ErrAlreadyUsed
	}
	if now.After(b.ExpiresAt) {
		return nil, ErrExpired
	}

	b.Used = true
	b.UsedAt = now
	s.bundles[id] = b
	return &b, nil
}

// Delete removes a bundle
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bundles, id)
	return nil
}

// Len returns the number of stored bundles
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bundles)
}
