// Package scenario implements the scenario context resolver and the
// scenario lifecycle: registry CRUD plus the activation protocol
// that drives pkg/provision.
package scenario

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/netsentry/conductor/pkg/backend"
	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/models"
	"github.com/netsentry/conductor/pkg/store"
)

// Defaults carries the process-wide fallbacks the resolver uses when no
// scenario config is on file, or the config store is unreachable — the
// resolver itself must never error.
type Defaults struct {
	BackendType       string
	GraphDatabase     string
	TelemetryDatabase string
	PromptsDatabase   string
}

// resolverCacheEntry is a short-TTL cache slot keyed by scenario prefix.
type resolverCacheEntry struct {
	cfg       config.ScenarioConfig
	found     bool
	expiresAt time.Time
}

// Resolver maps an inbound X-Graph header to a ScenarioContext.
type Resolver struct {
	store    store.Store
	defaults Defaults
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]resolverCacheEntry
}

// NewResolver builds a Resolver. cacheTTL of 0 disables caching (every
// lookup hits the store).
func NewResolver(s store.Store, defaults Defaults, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store:    s,
		defaults: defaults,
		cacheTTL: cacheTTL,
		cache:    make(map[string]resolverCacheEntry),
	}
}

// Resolve maps a routing header to a ScenarioContext. graphNameHeader is
// the raw X-Graph header value (empty string if absent). This never
// returns an error — returning one would block every unrelated endpoint;
// a config-store outage degrades to the process default backend type.
func (r *Resolver) Resolve(ctx context.Context, graphNameHeader string) models.ScenarioContext {
	graphName := graphNameHeader
	if graphName == "" {
		graphName = r.defaults.GraphDatabase + "-topology"
	}
	prefix := scenarioPrefix(graphName)

	cfg, found := r.lookupConfig(ctx, prefix)

	backendType := r.defaults.BackendType
	telemetryType := backendType
	if found {
		if ds, ok := cfg.DataSources["graph"]; ok && ds.Type != "" {
			backendType = mapConnectorType(ds.Type)
			telemetryType = backendType
		}
		if ds, ok := cfg.DataSources["telemetry"]; ok && ds.Type != "" {
			telemetryType = mapConnectorType(ds.Type)
		}
	}

	return models.ScenarioContext{
		GraphName:            graphName,
		GraphDatabase:        r.defaults.GraphDatabase,
		TelemetryDatabase:    r.defaults.TelemetryDatabase,
		TelemetryPrefix:      prefix,
		PromptsDatabase:      r.defaults.PromptsDatabase,
		PromptsContainer:     prefix,
		BackendType:          backendType,
		TelemetryBackendType: telemetryType,
		ScenarioName:         prefix,
	}
}

// scenarioPrefix splits on the LAST hyphen: "foo-bar-topology" -> "foo-bar".
func scenarioPrefix(graphName string) string {
	idx := strings.LastIndex(graphName, "-")
	if idx < 0 {
		return graphName
	}
	return graphName[:idx]
}

// mapConnectorType maps a scenario config's declared data-source connector
// string to a backend registry key. Both vocabularies are already the
// connector key today (e.g. "native-graph", "remote-gql"); this exists as
// a single seam so a future config vocabulary change doesn't ripple into
// every caller of Resolve.
func mapConnectorType(declared string) string {
	switch declared {
	case backend.ConnectorNativeGraph, backend.ConnectorRemoteGQL, backend.ConnectorKQL, backend.ConnectorSQL, backend.ConnectorMock:
		return declared
	default:
		return declared
	}
}

func (r *Resolver) lookupConfig(ctx context.Context, prefix string) (config.ScenarioConfig, bool) {
	if r.cacheTTL > 0 {
		r.mu.Lock()
		if e, ok := r.cache[prefix]; ok && time.Now().Before(e.expiresAt) {
			r.mu.Unlock()
			return e.cfg, e.found
		}
		r.mu.Unlock()
	}

	cfg, found := r.fetchConfig(ctx, prefix)

	if r.cacheTTL > 0 {
		r.mu.Lock()
		r.cache[prefix] = resolverCacheEntry{cfg: cfg, found: found, expiresAt: time.Now().Add(r.cacheTTL)}
		r.mu.Unlock()
	}
	return cfg, found
}

func (r *Resolver) fetchConfig(ctx context.Context, prefix string) (config.ScenarioConfig, bool) {
	if r.store == nil {
		return config.ScenarioConfig{}, false
	}
	doc, err := r.store.Get(ctx, store.ContainerScenarioConfigs, prefix)
	if err != nil {
		return config.ScenarioConfig{}, false
	}
	var cfg config.ScenarioConfig
	if err := decodeScenarioConfig(doc.Body, &cfg); err != nil {
		return config.ScenarioConfig{}, false
	}
	return cfg, true
}
