// Package store opens the shared record store both subdomains read from.
package store

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/otiai10/gatekeeper/internal/config"
)

// emulatorHostEnv is honored by the Firestore SDK itself
const emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// FirestoreClient wraps the Firestore client shared by the principal
// repository and the relay store
type FirestoreClient struct {
	client    *firestore.Client
	projectID string
	database  string
}

// NewFirestoreClient creates a new Firestore client.
// If FIRESTORE_EMULATOR_HOST is set, the client will connect to the emulator
// and the credentials file is ignored.
//
// Parameters:
//   - ctx: Context for client creation
//   - cfg: Store section of the configuration
//
// Returns:
//   - FirestoreClient instance
//   - Error if projectId is missing or the client cannot be created
func NewFirestoreClient(ctx context.Context, cfg config.StoreConfig) (*FirestoreClient, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	emulatorHost := os.Getenv(emulatorHostEnv)
	if emulatorHost != "" {
		log.Info().Str("host", emulatorHost).Msg("using Firestore emulator")
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" && emulatorHost == "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	log.Debug().Str("project", cfg.ProjectID).Str("database", database).Msg("firestore client ready")

	return &FirestoreClient{
		client:    client,
		projectID: cfg.ProjectID,
		database:  database,
	}, nil
}

// Close releases resources held by the Firestore client
func (f *FirestoreClient) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Client returns the underlying Firestore client
func (f *FirestoreClient) Client() *firestore.Client {
	return f.client
}

// ProjectID returns the GCP project ID
func (f *FirestoreClient) ProjectID() string {
	return f.projectID
}

// Database returns the Firestore database name
func (f *FirestoreClient) Database() string {
	return f.database
}
