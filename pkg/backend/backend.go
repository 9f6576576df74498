// Package backend implements the pluggable graph/telemetry data-source
// dispatch layer: a typed Backend interface, concrete connector
// implementations, and a process-wide, concurrency-safe registry that
// caches instances by {backend_type}:{graph_name}.
//
// Each connector is a concrete Go type satisfying Backend, registered
// under its connector key via a factory closure; the registry maps
// connector keys to factories, never to shared instances.
package backend

import "context"

// QueryResult is the body every ExecuteQuery call returns. Errors are
// carried in Error, never via a Go error return or HTTP status: the
// hosted-agent runtime's HTTP tool treats non-200 responses as fatal, so
// the LLM would never see the message.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Error   string           `json:"error,omitempty"`
}

// TopologyResult is the body GetTopology returns for visualization.
type TopologyResult struct {
	Nodes []map[string]any `json:"nodes"`
	Edges []map[string]any `json:"edges"`
	Meta  TopologyMeta     `json:"meta"`
	Error string           `json:"error,omitempty"`
}

// TopologyMeta carries summary counts and the distinct vertex labels seen.
type TopologyMeta struct {
	Counts map[string]int `json:"counts"`
	Labels []string       `json:"labels"`
}

// IngestInput bundles what Ingest needs beyond the raw rows: the resource
// names to write into and a progress callback for the ingestion pipeline
// to surface row-level progress through the SSE substrate.
type IngestInput struct {
	GraphName     string
	GraphDatabase string
	Progress      func(step string, done, total int)
}

// IngestCounts reports how many vertices/edges were written.
type IngestCounts struct {
	Vertices int `json:"vertices"`
	Edges    int `json:"edges"`
}

// Vertex and Edge are the ingestion pipeline's parsed-CSV-row shape handed
// to Ingest; label/type plus an arbitrary property bag.
type Vertex struct {
	ID         string
	Label      string
	Properties map[string]any
}

type Edge struct {
	ID         string
	Label      string
	FromID     string
	ToID       string
	Properties map[string]any
}

// Backend is the common protocol every connector satisfies.
type Backend interface {
	// ExecuteQuery runs a backend-native query string with the given
	// keyword-argument context. Errors are returned in QueryResult.Error,
	// never via the error return — the error return is reserved for
	// context cancellation/programmer errors that should never reach an
	// agent.
	ExecuteQuery(ctx context.Context, query string, kwargs map[string]any) (QueryResult, error)

	// GetTopology returns the full (or query-filtered) graph for
	// visualization. query and vertexLabels are optional.
	GetTopology(ctx context.Context, query string, vertexLabels []string) (TopologyResult, error)

	// Ingest loads vertices and edges into the backend's store. The
	// telemetry-only KQL and SQL connectors return ErrNotSupported.
	Ingest(ctx context.Context, vertices []Vertex, edges []Edge, in IngestInput) (IngestCounts, error)

	// Close releases resources synchronously; idempotent.
	Close() error
}

// AsyncCloser is implemented by backends that hold resources better
// released asynchronously (e.g. a connection pool with in-flight
// goroutines to drain). The registry prefers this over Close when present.
type AsyncCloser interface {
	AsyncClose(ctx context.Context) error
}

// ErrNotSupported is returned by Ingest on backends that do not accept
// graph data (the telemetry-only KQL and SQL connectors).
type ErrNotSupported struct {
	Backend string
}

func (e *ErrNotSupported) Error() string {
	return "backend " + e.Backend + " does not support ingestion"
}
