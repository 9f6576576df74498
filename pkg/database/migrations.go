package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates the JSONB GIN index (jsonb_path_ops on body) on
// the generic document table. Not expressed as a declarative migration because
// CONCURRENTLY-eligible index creation on a large existing table is an
// operational decision, not a schema one — kept as explicit Go so it can be
// skipped/retried independently of the migration transaction.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_documents_body_gin
		ON documents USING gin(body jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create documents body GIN index: %w", err)
	}
	return nil
}
