package principal

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreRepository implements Repository interface using Firestore
type FirestoreRepository struct {
	client *firestore.Client
}

// Ensure FirestoreRepository implements Repository interface
var _ Repository = (*FirestoreRepository)(nil)

// NewFirestoreRepository creates a new FirestoreRepository
//
// Parameters:
//   - client: Firestore client instance
//
// Returns:
//   - FirestoreRepository instance
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{
		client: client,
	}
}

// Get retrieves a principal by document ID
//
// Parameters:
//   - ctx: Context for cancellation control
//   - collection: Record set to read from
//   - id: Document ID to retrieve
//
// Returns:
//   - Pointer to the principal (nil if not found)
//   - Error if Firestore operation fails (nil for not found)
func (r *FirestoreRepository) Get(ctx context.Context, collection Collection, id string) (*Principal, error) {
	if id == "" {
		return nil, nil
	}

	doc, err := r.client.Collection(string(collection)).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	p := dataToPrincipal(doc.Ref.ID, collection, doc.Data())
	return &p, nil
}

// FindByEmail retrieves a principal by normalized email
//
// Parameters:
//   - ctx: Context for cancellation control
//   - collection: Record set to query
//   - email: Email to search for (normalized before querying)
//
// Returns:
//   - Pointer to the principal (nil if not found)
//   - Error if Firestore operation fails (nil for not found)
func (r *FirestoreRepository) FindByEmail(ctx context.Context, collection Collection, email string) (*Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	docs, err := r.client.Collection(string(collection)).
		Where("email", "==", email).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by email: %w", collection, err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	p := dataToPrincipal(docs[0].Ref.ID, collection, docs[0].Data())
	return &p, nil
}

// RecordLogin stamps lastLoginAt on the principal document
//
// Returns:
//   - ErrNotFound if the document does not exist
//   - Error if Firestore operation fails
func (r *FirestoreRepository) RecordLogin(ctx context.Context, collection Collection, id string, at time.Time) error {
	_, err := r.client.Collection(string(collection)).Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastLoginAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to record login for %s/%s: %w", collection, id, err)
	}
	return nil
}

// dataToPrincipal converts a Firestore document map to a Principal.
// A missing isActive field means active; only an explicit false disables.
func dataToPrincipal(id string, collection Collection, data map[string]interface{}) Principal {
	p := Principal{
		ID:          id,
		Collection:  collection,
		UID:         getString(data, "uid"),
		Email:       getString(data, "email"),
		DisplayName: getString(data, "displayName"),
		FirstName:   getString(data, "firstName"),
		LastName:    getString(data, "lastName"),
		PhotoURL:    getString(data, "photoURL"),
		IsActive:    true,
		CreatedAt:   getTime(data, "createdAt"),
		LastLoginAt: getTime(data, "lastLoginAt"),
	}

	if p.DisplayName == "" {
		p.DisplayName = getString(data, "name")
	}
	if active, ok := data["isActive"].(bool); ok {
		p.IsActive = active
	}

	return p
}

// principalToMap converts a Principal to a Firestore document map
func principalToMap(p Principal) map[string]interface{} {
	data := map[string]interface{}{
		"uid":         p.UID,
		"email":       NormalizeEmail(p.Email),
		"displayName": p.DisplayName,
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"isActive":    p.IsActive,
	}
	if p.PhotoURL != "" {
		data["photoURL"] = p.PhotoURL
	}
	if !p.CreatedAt.IsZero() {
		data["createdAt"] = p.CreatedAt
	}
	if !p.LastLoginAt.IsZero() {
		data["lastLoginAt"] = p.LastLoginAt
	}
	return data
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Put creates or overwrites a principal document
//
// Parameters:
//   - ctx: Context for cancellation control
//   - p: Principal to store; ID and Collection select the document
//
// Returns:
//   - Error if Firestore operation fails
func (r *FirestoreRepository) Put(ctx context.Context, p Principal) error {
	if p.ID == "" {
		return fmt.Errorf("principal ID is required")
	}
	_, err := r.client.Collection(string(p.Collection)).Doc(p.ID).Set(ctx, principalToMap(p))
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", p.Collection, p.ID, err)
	}
	return nil
}
