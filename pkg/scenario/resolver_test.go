package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/netsentry/conductor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_NoHeaderFallsBackToDefaultGraph(t *testing.T) {
	r := NewResolver(store.NewMemory(), Defaults{BackendType: "mock", GraphDatabase: "demo"}, 0)
	ctx := context.Background()

	got := r.Resolve(ctx, "")
	assert.Equal(t, "demo-topology", got.GraphName)
	assert.Equal(t, "demo", got.ScenarioName)
	assert.Equal(t, "mock", got.BackendType)
}

func TestResolver_SplitsOnLastHyphen(t *testing.T) {
	r := NewResolver(store.NewMemory(), Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(context.Background(), "net-outage-topology")
	assert.Equal(t, "net-outage", got.ScenarioName)
	assert.Equal(t, "net-outage", got.TelemetryPrefix)
}

func TestResolver_NoHyphenPrefixIsWholeName(t *testing.T) {
	r := NewResolver(store.NewMemory(), Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(context.Background(), "standalone")
	assert.Equal(t, "standalone", got.ScenarioName)
}

func TestResolver_ConfigPresentOverridesBackendType(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, store.ContainerScenarioConfigs, store.Document{
		ID: "net-outage",
		Body: map[string]any{
			"scenario_name": "net-outage",
			"data_sources": map[string]any{
				"graph": map[string]any{"type": "remote-gql"},
			},
			"agents": []any{map[string]any{"name": "orchestrator", "role": "orchestrator"}},
		},
	}))

	r := NewResolver(s, Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(ctx, "net-outage-topology")
	assert.Equal(t, "remote-gql", got.BackendType)
}

func TestResolver_TelemetryConnectorDeclaredSeparately(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, store.ContainerScenarioConfigs, store.Document{
		ID: "net-outage",
		Body: map[string]any{
			"scenario_name": "net-outage",
			"data_sources": map[string]any{
				"graph":     map[string]any{"type": "native-graph"},
				"telemetry": map[string]any{"type": "kql"},
			},
			"agents": []any{map[string]any{"name": "orchestrator", "role": "orchestrator"}},
		},
	}))

	r := NewResolver(s, Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(ctx, "net-outage-topology")
	assert.Equal(t, "native-graph", got.BackendType)
	assert.Equal(t, "kql", got.TelemetryBackendType)
}

func TestResolver_MissingConfigFallsBackToDefaultBackendType(t *testing.T) {
	r := NewResolver(store.NewMemory(), Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(context.Background(), "unknown-scenario-topology")
	assert.Equal(t, "mock", got.BackendType)
}

func TestResolver_NilStoreNeverErrors(t *testing.T) {
	r := NewResolver(nil, Defaults{BackendType: "mock"}, 0)
	got := r.Resolve(context.Background(), "anything-topology")
	assert.Equal(t, "mock", got.BackendType)
}

func TestResolver_CacheServesWithinTTL(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, store.ContainerScenarioConfigs, store.Document{
		ID: "cached",
		Body: map[string]any{
			"scenario_name": "cached",
			"data_sources":  map[string]any{"graph": map[string]any{"type": "remote-gql"}},
			"agents":        []any{map[string]any{"name": "o", "role": "orchestrator"}},
		},
	}))

	r := NewResolver(s, Defaults{BackendType: "mock"}, time.Minute)
	got1 := r.Resolve(ctx, "cached-topology")
	assert.Equal(t, "remote-gql", got1.BackendType)

	// Mutate the underlying config after the first resolve; cached result
	// should still reflect the original lookup within the TTL window.
	require.NoError(t, s.Delete(ctx, store.ContainerScenarioConfigs, "cached"))
	got2 := r.Resolve(ctx, "cached-topology")
	assert.Equal(t, "remote-gql", got2.BackendType, "cached entry should survive within TTL despite underlying delete")
}
