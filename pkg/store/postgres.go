package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Postgres implements Store over the generic JSONB documents table
// (pkg/database/migrations). All containers share one table, partitioned
// by the container column — the schema is createless: there is no
// control-plane "create container" step and no ensure method here; a
// container exists as soon as a document is upserted into it.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, container, id string) (Document, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE container = $1 AND id = $2`, container, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", container, id, err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return Document{}, fmt.Errorf("store: decode %s/%s: %w", container, id, err)
	}
	return Document{ID: id, Body: body}, nil
}

func (p *Postgres) Upsert(ctx context.Context, container string, doc Document) error {
	if !ValidID(doc.ID) {
		return fmt.Errorf("store: invalid document id %q", doc.ID)
	}
	raw, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", container, doc.ID, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (container, id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (container, id) DO UPDATE
		SET body = EXCLUDED.body, updated_at = now()`,
		container, doc.ID, raw)
	if err != nil {
		return fmt.Errorf("store: upsert %s/%s: %w", container, doc.ID, err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, container string, pred Predicate) ([]Document, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE container = $1 ORDER BY updated_at DESC`, container)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", container, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", container, err)
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("store: decode %s/%s: %w", container, id, err)
		}
		doc := Document{ID: id, Body: body}
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query %s: %w", container, err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, container, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE container = $1 AND id = $2`, container, id)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", container, id, err)
	}
	return nil
}
