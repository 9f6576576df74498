package backend

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLConfig configures the document-SQL connector: a telemetry database
// queried with SQL, reached over the same pgx driver the persistence layer
// uses (see pkg/database), just a different database/connection string —
// telemetry data and scenario/config documents are kept in separate
// logical databases even though both speak Postgres wire protocol.
type SQLConfig struct {
	DSN string
}

// SQL speaks SQL against a telemetry database. Used only for telemetry,
// not graph.
type SQL struct {
	db *sql.DB
}

func SQLFactory(cfgFor func(graphName string) (SQLConfig, error)) Factory {
	return func(ctx context.Context, graphName string) (Backend, error) {
		cfg, err := cfgFor(graphName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
		}
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return &SQL{db: db}, nil
	}
}

func (s *SQL) ExecuteQuery(ctx context.Context, query string, kwargs map[string]any) (QueryResult, error) {
	args := make([]any, 0, len(kwargs))
	for _, v := range kwargs {
		args = append(args, v)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return QueryResult{Error: fmt.Sprintf("%v: %v", ErrQuerySyntax, err)}, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{Error: err.Error()}, nil
	}

	var data []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{Error: err.Error()}, nil
		}
		row := map[string]any{}
		for i, c := range cols {
			row[c] = vals[i]
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{Error: err.Error()}, nil
	}
	return QueryResult{Columns: cols, Data: data}, nil
}

func (s *SQL) GetTopology(context.Context, string, []string) (TopologyResult, error) {
	return TopologyResult{}, &ErrNotSupported{Backend: ConnectorSQL}
}

func (s *SQL) Ingest(context.Context, []Vertex, []Edge, IngestInput) (IngestCounts, error) {
	return IngestCounts{}, &ErrNotSupported{Backend: ConnectorSQL}
}

func (s *SQL) Close() error { return s.db.Close() }
