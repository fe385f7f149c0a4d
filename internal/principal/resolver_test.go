package principal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingRepository returns err for every call
type failingRepository struct {
	err error
}

func (f failingRepository) Get(context.Context, Collection, string) (*Principal, error) {
	return nil, f.err
}

func (f failingRepository) FindByEmail(context.Context, Collection, string) (*Principal, error) {
	return nil, f.err
}

func (f failingRepository) RecordLogin(context.Context, Collection, string, time.Time) error {
	return f.err
}

func seededRepository(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	ctx := context.Background()
	for _, p := range []Principal{
		{ID: "emp-1", Collection: CollectionEmployees, Email: "ops@example.com", DisplayName: "Ops", IsActive: true},
		{ID: "emp-off", Collection: CollectionEmployees, Email: "gone@example.com", IsActive: false},
		{ID: "usr-1", Collection: CollectionUsers, Email: "Customer@Example.com", FirstName: "Cus", LastName: "Tomer", IsActive: true},
		{ID: "usr-off", Collection: CollectionUsers, Email: "banned@example.com", IsActive: false},
		{ID: "both", Collection: CollectionEmployees, Email: "both@example.com", IsActive: true},
		{ID: "both", Collection: CollectionUsers, Email: "both@example.com", IsActive: true},
	} {
		require.NoError(t, repo.Put(ctx, p))
	}
	return repo
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		email          string
		target         Role
		wantRole       Role
		wantID         string
		wantCollection Collection
		wantErr        error
	}{
		{
			name:           "untargeted employee by id",
			id:             "emp-1",
			wantRole:       RoleAdmin,
			wantID:         "emp-1",
			wantCollection: CollectionEmployees,
		},
		{
			name:           "untargeted user by id",
			id:             "usr-1",
			wantRole:       RoleUser,
			wantID:         "usr-1",
			wantCollection: CollectionUsers,
		},
		{
			name:           "untargeted employee wins over user with same id",
			id:             "both",
			wantRole:       RoleAdmin,
			wantCollection: CollectionEmployees,
			wantID:         "both",
		},
		{
			name:           "email fallback when identifier drifted",
			id:             "google-oauth-xyz",
			email:          "  OPS@example.com ",
			wantRole:       RoleAdmin,
			wantID:         "emp-1",
			wantCollection: CollectionEmployees,
		},
		{
			name:           "email fallback is case insensitive on stored side",
			id:             "unknown",
			email:          "customer@example.com",
			wantRole:       RoleUser,
			wantID:         "usr-1",
			wantCollection: CollectionUsers,
		},
		{
			name:    "nothing matches",
			id:      "nobody",
			email:   "nobody@example.com",
			wantErr: ErrNotFound,
		},
		{
			name:    "empty identity",
			wantErr: ErrNotFound,
		},
		{
			name:    "disabled employee",
			id:      "emp-off",
			wantErr: ErrDisabled,
		},
		{
			name:    "disabled user by email",
			email:   "banned@example.com",
			wantErr: ErrDisabled,
		},
		{
			name:           "admin target accepts employee",
			id:             "emp-1",
			target:         RoleAdmin,
			wantRole:       RoleAdmin,
			wantID:         "emp-1",
			wantCollection: CollectionEmployees,
		},
		{
			name:    "admin target never upgrades a user",
			id:      "usr-1",
			email:   "customer@example.com",
			target:  RoleAdmin,
			wantErr: ErrNotFound,
		},
		{
			name:    "admin target rejects disabled employee",
			email:   "gone@example.com",
			target:  RoleAdmin,
			wantErr: ErrDisabled,
		},
		{
			name:           "user target prefers user record",
			id:             "both",
			target:         RoleUser,
			wantRole:       RoleUser,
			wantID:         "both",
			wantCollection: CollectionUsers,
		},
		{
			name:           "employee visiting public site resolves as user",
			id:             "emp-1",
			target:         RoleUser,
			wantRole:       RoleUser,
			wantID:         "emp-1",
			wantCollection: CollectionEmployees,
		},
		{
			name:           "employee visiting public site by email",
			email:          "ops@example.com",
			target:         RoleUser,
			wantRole:       RoleUser,
			wantID:         "emp-1",
			wantCollection: CollectionEmployees,
		},
		{
			name:    "unknown target",
			id:      "emp-1",
			target:  Role("superuser"),
			wantErr: ErrInvalidRole,
		},
	}

	resolver := NewResolver(seededRepository(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolver.Resolve(context.Background(), tt.id, tt.email, tt.target)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, res.Role)
			assert.Equal(t, tt.wantID, res.Principal.ID)
			assert.Equal(t, tt.wantCollection, res.Collection())
		})
	}
}

func TestResolver_StoreFailure(t *testing.T) {
	boom := errors.New("unavailable")
	resolver := NewResolver(failingRepository{err: boom})

	_, err := resolver.Resolve(context.Background(), "emp-1", "", "")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolver_RecordLogin(t *testing.T) {
	repo := seededRepository(t)
	resolver := NewResolver(repo)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	resolver.now = func() time.Time { return at }

	res, err := resolver.Resolve(context.Background(), "usr-1", "", "")
	require.NoError(t, err)
	resolver.RecordLogin(context.Background(), res)

	got, err := repo.Get(context.Background(), CollectionUsers, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, at, got.LastLoginAt)

	// Failures are swallowed.
	NewResolver(failingRepository{err: errors.New("x")}).RecordLogin(context.Background(), res)
	resolver.RecordLogin(context.Background(), nil)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	for _, bad := range []string{"", "Admin", "root", "user "} {
		_, err := ParseRole(bad)
		assert.ErrorIs(t, err, ErrInvalidRole, bad)
	}
}
