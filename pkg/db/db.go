package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/rs/zerolog/log"
)

// InitDB opens the ping store at path, falling back to the working
// directory when the parent directory does not exist, and applies
// pending migrations. It aborts the process on failure.
func InitDB(ctx context.Context, path string) *entsql.Driver {
	fileName := path
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		fileName, _ = filepath.Abs(filepath.Base(path))
	}

	client, err := Open(ctx, fileName)
	if err != nil {
		log.Error().Err(err).Msgf("failed to open db: %v", err)
		_, _ = fmt.Fprintf(os.Stderr, "Failed to open db: %v\n", err)
		os.Exit(1)
	}

	return client
}

// Open returns a migrated driver for the sqlite file at path.
func Open(ctx context.Context, path string) (*entsql.Driver, error) {
	client, err := GetClient(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get db client: %w", err)
	}

	err = RunMigration(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return client, nil
}
