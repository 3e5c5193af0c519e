package db

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; PRAGMA user_version records how many
// have already run against a database file.
var migrations = [][]string{
	{
		"CREATE TABLE IF NOT EXISTS `pings` (" +
			"`id` TEXT PRIMARY KEY, " +
			"`ping_type` TEXT NOT NULL, " +
			"`upload_path` TEXT NOT NULL, " +
			"`measurements` TEXT NOT NULL, " +
			"`created_at` INTEGER NOT NULL)",
		"CREATE INDEX IF NOT EXISTS `pings_ping_type_created_at` ON `pings` (`ping_type`, `created_at`)",
		// value is untyped so numbers come back as int64 or float64.
		"CREATE TABLE IF NOT EXISTS `kv_store` (`name` TEXT PRIMARY KEY, `value`)",
	},
}

func RunMigration(ctx context.Context, client *entsql.Driver) error {
	version, err := schemaVersion(ctx, client)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := client.Tx(ctx)
		if err != nil {
			return err
		}

		for _, stmt := range migrations[i] {
			if err = tx.Exec(ctx, stmt, []any{}, nil); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}

		// PRAGMA does not accept bound parameters.
		if err = tx.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1), []any{}, nil); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err = tx.Commit(); err != nil {
			return err
		}
		log.Debug().Msgf("Applied db migration %d.", i+1)
	}

	return nil
}

func schemaVersion(ctx context.Context, client *entsql.Driver) (int, error) {
	var rows entsql.Rows
	if err := client.Query(ctx, "PRAGMA user_version", []any{}, &rows); err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	version := 0
	if rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return 0, err
		}
	}

	return version, rows.Err()
}
