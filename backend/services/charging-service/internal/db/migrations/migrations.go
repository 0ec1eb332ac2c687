// Package migrations applies the embedded schema files in name order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"

	libdb "chargeflow/backend/libs/db"
)

//go:embed *.sql
var files embed.FS

const createVersionsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate applies every migration that is not recorded in schema_migrations yet. Each file runs
// in its own transaction. It returns the versions applied by this call.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) ([]string, error) {
	if _, err := db.ExecContext(ctx, createVersionsTable); err != nil {
		return nil, fmt.Errorf("migrations: create versions table: %w", err)
	}

	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("migrations: check %s: %w", name, err)
		}
		if exists {
			continue
		}

		body, err := files.ReadFile(name)
		if err != nil {
			return applied, err
		}
		err = libdb.InTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migrations: apply %s: %w", name, err)
		}
		logger.Info("migration applied", zap.String("version", name))
		applied = append(applied, name)
	}
	return applied, nil
}
