package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Connector keys — the finite set of backend registry keys a
// ScenarioContext.BackendType may name.
const (
	ConnectorNativeGraph = "native-graph"
	ConnectorRemoteGQL   = "remote-gql"
	ConnectorKQL         = "kql"
	ConnectorSQL         = "sql"
	ConnectorMock        = "mock"
)

// Factory instantiates a Backend for a given graph name. Factories must not
// be registered more than once per connector key.
type Factory func(ctx context.Context, graphName string) (Backend, error)

// entry is a cache slot: either pending (others wait on ready) or resolved.
type entry struct {
	ready    chan struct{}
	backend  Backend
	err      error
	lastUsed time.Time
}

// Registry is the process-wide, mutex-guarded backend cache keyed
// "{backend_type}:{graph_name}". A single request may
// hit a previously-instantiated backend; concurrent misses on the same key
// produce exactly one factory invocation.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]*entry
}

// NewRegistry builds an empty Registry. Call Register for each connector
// before first use.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]*entry),
	}
}

// Register binds a connector key to its factory. Not safe to call
// concurrently with Dispatch; call during startup only.
func (r *Registry) Register(connector string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[connector] = f
}

func cacheKey(backendType, graphName string) string {
	return backendType + ":" + graphName
}

// Dispatch resolves the backend instance for (backendType, graphName),
// instantiating it on first use and reusing the cached instance afterward.
// Concurrent calls for the same key block on the same in-flight
// instantiation rather than racing separate factory calls.
func (r *Registry) Dispatch(ctx context.Context, backendType, graphName string) (Backend, error) {
	key := cacheKey(backendType, graphName)

	r.mu.Lock()
	if e, ok := r.cache[key]; ok {
		r.mu.Unlock()
		<-e.ready
		if e.err != nil {
			return nil, e.err
		}
		r.mu.Lock()
		e.lastUsed = time.Now()
		r.mu.Unlock()
		return e.backend, nil
	}

	factory, ok := r.factories[backendType]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: no factory registered for connector %q", ErrBackendNotFound, backendType)
	}

	e := &entry{ready: make(chan struct{})}
	r.cache[key] = e
	r.mu.Unlock()

	// Instantiation (a suspension point — dial/handshake) happens outside
	// the registry lock; concurrent callers on this key are parked on
	// e.ready, not spinning or double-instantiating.
	b, err := factory(ctx, graphName)
	e.backend, e.err = b, err
	e.lastUsed = time.Now()
	close(e.ready)

	if err != nil {
		r.mu.Lock()
		delete(r.cache, key) // don't pin a failed instantiation forever
		r.mu.Unlock()
		return nil, err
	}
	return b, nil
}

// CloseAll closes every cached backend instance, awaiting AsyncClose where
// implemented. Called on process shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.cache))
	for _, e := range r.cache {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.err != nil || e.backend == nil {
			continue
		}
		if ac, ok := e.backend.(AsyncCloser); ok {
			if err := ac.AsyncClose(ctx); err != nil {
				slog.Warn("backend: async close failed", "error", err)
			}
			continue
		}
		if err := e.backend.Close(); err != nil {
			slog.Warn("backend: close failed", "error", err)
		}
	}
}

// Evict drops a cache entry (e.g. for tests, or an explicit admin reset) —
// the next Dispatch for that key re-instantiates via the factory.
func (r *Registry) Evict(backendType, graphName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey(backendType, graphName))
}

// Size reports the number of currently cached (resolved or pending)
// backend instances, surfaced by the /health endpoint.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
