package principal

import (
	"context"
	"time"
)

// Repository defines the record store operations the resolver needs.
// Lookups return (nil, nil) when nothing matches.
type Repository interface {
	// Get retrieves a principal by document ID
	Get(ctx context.Context, collection Collection, id string) (*Principal, error)

	// FindByEmail retrieves the first principal whose normalized email matches
	FindByEmail(ctx context.Context, collection Collection, email string) (*Principal, error)

	// RecordLogin stamps the last login time of a principal
	RecordLogin(ctx context.Context, collection Collection, id string, at time.Time) error
}
