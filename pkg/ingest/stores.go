package ingest

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore is the document-blob contract the runbooks and tickets kinds
// write through: ensure the container exists (control plane, may block),
// then upload documents with overwrite semantics (data plane).
type BlobStore interface {
	EnsureContainer(ctx context.Context, container string) error
	Upload(ctx context.Context, container, name string, data []byte) error
}

// SearchIndexer triggers or updates a search-index build pointing at a
// blob container.
type SearchIndexer interface {
	EnsureIndex(ctx context.Context, indexName, sourceContainer string) error
}

// TelemetryWriter is the telemetry-store contract: database and container
// creation are control-plane calls behind elevated privileges and may
// block for tens of seconds; row upserts are data-plane. The split keeps
// read paths (which never call Ensure*) from ever paying the control-plane
// latency.
type TelemetryWriter interface {
	EnsureDatabase(ctx context.Context, database string) error
	EnsureContainer(ctx context.Context, database, container, partitionKey string) error
	UpsertRows(ctx context.Context, database, container string, rows []map[string]any) error
}

// MemoryBlobStore is an in-process BlobStore for tests and local-dev mode.
type MemoryBlobStore struct {
	mu         sync.Mutex
	Containers map[string]map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{Containers: make(map[string]map[string][]byte)}
}

func (m *MemoryBlobStore) EnsureContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Containers[container]; !ok {
		m.Containers[container] = make(map[string][]byte)
	}
	return nil
}

func (m *MemoryBlobStore) Upload(_ context.Context, container, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Containers[container]
	if !ok {
		return fmt.Errorf("container %s does not exist", container)
	}
	c[name] = data
	return nil
}

// MemorySearchIndexer records EnsureIndex calls for tests and local-dev.
type MemorySearchIndexer struct {
	mu      sync.Mutex
	Indexes map[string]string
}

func NewMemorySearchIndexer() *MemorySearchIndexer {
	return &MemorySearchIndexer{Indexes: make(map[string]string)}
}

func (m *MemorySearchIndexer) EnsureIndex(_ context.Context, indexName, sourceContainer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Indexes[indexName] = sourceContainer
	return nil
}

// MemoryTelemetryWriter is an in-process TelemetryWriter for tests and
// local-dev mode. Rows are retained per database/container.
type MemoryTelemetryWriter struct {
	mu         sync.Mutex
	Databases  map[string]bool
	Partitions map[string]string           // "db/container" -> partition key
	Rows       map[string][]map[string]any // "db/container" -> rows
}

func NewMemoryTelemetryWriter() *MemoryTelemetryWriter {
	return &MemoryTelemetryWriter{
		Databases:  make(map[string]bool),
		Partitions: make(map[string]string),
		Rows:       make(map[string][]map[string]any),
	}
}

func (m *MemoryTelemetryWriter) EnsureDatabase(_ context.Context, database string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Databases[database] = true
	return nil
}

func (m *MemoryTelemetryWriter) EnsureContainer(_ context.Context, database, container, partitionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Databases[database] {
		return fmt.Errorf("database %s does not exist", database)
	}
	m.Partitions[database+"/"+container] = partitionKey
	return nil
}

func (m *MemoryTelemetryWriter) UpsertRows(_ context.Context, database, container string, rows []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := database + "/" + container
	if _, ok := m.Partitions[key]; !ok {
		return fmt.Errorf("container %s does not exist", key)
	}
	m.Rows[key] = append(m.Rows[key], rows...)
	return nil
}
