package principal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otiai10/gatekeeper/internal/config"
)

// MemoryRepository is an in-process Repository used when Firestore is not
// configured and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[Collection]map[string]Principal
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: map[Collection]map[string]Principal{
			CollectionEmployees: {},
			CollectionUsers:     {},
		},
	}
}

// NewStaticRepository creates a MemoryRepository from configured principals.
// Admins are placed in the employees collection, users in users.
func NewStaticRepository(principals []config.PrincipalConfig) (*MemoryRepository, error) {
	repo := NewMemoryRepository()
	for i, pc := range principals {
		if err := repo.Put(context.Background(), FromConfig(pc)); err != nil {
			return nil, fmt.Errorf("principals[%d]: %w", i, err)
		}
	}
	return repo, nil
}

// FromConfig converts a configured principal to a Principal record
func FromConfig(pc config.PrincipalConfig) Principal {
	collection := CollectionUsers
	if Role(pc.Role) == RoleAdmin {
		collection = CollectionEmployees
	}
	return Principal{
		ID:          pc.ID,
		Collection:  collection,
		UID:         pc.ID,
		Email:       pc.Email,
		DisplayName: pc.DisplayName,
		IsActive:    !pc.Disabled,
	}
}

// Put stores a copy of p
func (r *MemoryRepository) Put(ctx context.Context, p Principal) error {
	if p.ID == "" {
		return fmt.Errorf("principal ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records[p.Collection] == nil {
		r.records[p.Collection] = map[string]Principal{}
	}
	r.records[p.Collection][p.ID] = p
	return nil
}

// Get retrieves a principal by ID
func (r *MemoryRepository) Get(ctx context.Context, collection Collection, id string) (*Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[collection][id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FindByEmail retrieves a principal by normalized email
func (r *MemoryRepository) FindByEmail(ctx context.Context, collection Collection, email string) (*Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.records[collection] {
		if NormalizeEmail(p.Email) == email {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// RecordLogin stamps the last login time
func (r *MemoryRepository) RecordLogin(ctx context.Context, collection Collection, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[collection][id]
	if !ok {
		return ErrNotFound
	}
	p.LastLoginAt = at
	r.records[collection][id] = p
	return nil
}
