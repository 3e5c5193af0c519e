package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	client, err := Open(ctx, filepath.Join(t.TempDir(), "telemon.db"))
	require.NoError(t, err, "Failed to open db.")
	defer func() { _ = client.Close() }()

	version, err := schemaVersion(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version, "All migrations should be recorded.")

	err = client.Exec(ctx, "INSERT INTO `kv_store` (`name`, `value`) VALUES (?, ?)", []any{"core-dailyUploadCount", 1}, nil)
	assert.NoError(t, err, "kv_store should exist after migration.")
}

func TestRunMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "telemon.db")

	client, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = Open(ctx, path)
	require.NoError(t, err, "Reopening a migrated db should succeed.")
	defer func() { _ = client.Close() }()

	assert.NoError(t, RunMigration(ctx, client))
}
