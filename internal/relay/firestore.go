package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/otiai10/gatekeeper/internal/principal"
)

const (
	// collectionName is the Firestore collection for relay bundles.
	// A TTL policy on expiresAt garbage-collects bundles nobody consumed.
	collectionName = "crossDomainAuth"
)

// FirestoreStore implements Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// Ensure FirestoreStore implements Store interface
var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore creates a new FirestoreStore
//
// Parameters:
//   - client: Firestore client instance
//
// Returns:
//   - FirestoreStore instance
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Create writes a new bundle document keyed by b.ID
//
// Returns:
//   - ErrDuplicate if the document already exists
//   - Error if Firestore operation fails
func (s *FirestoreStore) Create(ctx context.Context, b Bundle) error {
	_, err := s.client.Collection(collectionName).Doc(b.ID).Create(ctx, bundleToMap(b))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	return nil
}

// Consume runs the check-and-mark inside a transaction so that two
// concurrent consumers cannot both observe used == false.
//
// Parameters:
//   - ctx: Context for cancellation control
//   - id: Bundle ID
//   - now: Time used for the expiry check and usedAt
//
// Returns:
//   - The bundle, already marked used
//   - ErrNotFound, ErrAlreadyUsed or ErrExpired
//   - Error if Firestore operation fails
func (s *FirestoreStore) Consume(ctx context.Context, id string, now time.Time) (*Bundle, error) {
	ref := s.client.Collection(collectionName).Doc(id)

	var consumed *Bundle
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		consumed = nil

		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		b := dataToBundle(id, doc.Data())
		if b.Used {
			return ErrAlreadyUsed
		}
		if now.After(b.ExpiresAt) {
			return ErrExpired
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "used", Value: true},
			{Path: "usedAt", Value: now},
		}); err != nil {
			return err
		}

		b.Used = true
		b.UsedAt = now
		consumed = &b
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyUsed) || errors.Is(err, ErrExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume bundle: %w", err)
	}

	return consumed, nil
}

// Delete removes a bundle document
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Collection(collectionName).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	return nil
}

// bundleToMap converts a Bundle to a Firestore document map
func bundleToMap(b Bundle) map[string]interface{} {
	data := map[string]interface{}{
		"principalId": b.PrincipalID,
		"role":        string(b.Role),
		"token":       b.Credential,
		"redirectUrl": b.RedirectURL,
		"createdAt":   b.CreatedAt,
		"expiresAt":   b.ExpiresAt,
		"used":        b.Used,
	}
	if !b.UsedAt.IsZero() {
		data["usedAt"] = b.UsedAt
	}
	return data
}

// dataToBundle converts a Firestore document map to a Bundle
func dataToBundle(id string, data map[string]interface{}) Bundle {
	b := Bundle{ID: id}
	b.PrincipalID, _ = data["principalId"].(string)
	role, _ := data["role"].(string)
	b.Role = principal.Role(role)
	b.Credential, _ = data["token"].(string)
	b.RedirectURL, _ = data["redirectUrl"].(string)
	b.CreatedAt, _ = data["createdAt"].(time.Time)
	b.ExpiresAt, _ = data["expiresAt"].(time.Time)
	b.Used, _ = data["used"].(bool)
	b.UsedAt, _ = data["usedAt"].(time.Time)
	return b
}
