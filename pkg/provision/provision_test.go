package provision

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/netsentry/conductor/pkg/models"
	"github.com/netsentry/conductor/pkg/runtime"
	"github.com/netsentry/conductor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	runtime.Runtime

	mu      sync.Mutex
	created []runtime.AgentSpec
}

func (f *fakeRuntime) CreateOrUpdateAgent(_ context.Context, spec runtime.AgentSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	return "id-" + spec.Name, nil
}

func seedScenarioConfig(t *testing.T, s store.Store, name string) {
	t.Helper()
	body := map[string]any{
		"scenario_name": name,
		"data_sources": map[string]any{
			"graph":     map[string]any{"type": "native-graph"},
			"telemetry": map[string]any{"type": "sql"},
		},
		"agents": []any{
			map[string]any{"name": "graph-explorer", "role": "graph", "tools": []any{"graph_query"}},
			map[string]any{"name": "telemetry-analyst", "role": "telemetry", "tools": []any{"telemetry_query"}},
			map[string]any{"name": "runbook-knowledge", "role": "runbooks", "tools": []any{"runbooks_search"}},
			map[string]any{"name": "ticket-historian", "role": "tickets", "tools": []any{"tickets_search"}},
			map[string]any{
				"name": "orchestrator", "role": "orchestrator", "orchestrator": true,
				"connected_agents": []any{"graph-explorer", "telemetry-analyst", "runbook-knowledge", "ticket-historian"},
			},
		},
	}
	require.NoError(t, s.Upsert(context.Background(), store.ContainerScenarioConfigs, store.Document{ID: name, Body: body}))
}

func TestProvision_OrchestratorCreatedLast(t *testing.T) {
	mem := store.NewMemory()
	seedScenarioConfig(t, mem, "telco-noc")
	rt := &fakeRuntime{}
	p := New(mem, rt, "http://conductor.local")

	require.NoError(t, p.Provision(context.Background(), "telco-noc", nil))

	require.Len(t, rt.created, 5)
	assert.Equal(t, "orchestrator", rt.created[len(rt.created)-1].Name)

	// The orchestrator's connected-agent tools reference every sub-agent.
	var connected []string
	for _, tool := range rt.created[4].Tools {
		if tool.Kind == runtime.ToolKindConnectedAgent {
			connected = append(connected, tool.ConnectedAgentName)
		}
	}
	assert.Len(t, connected, 4)
}

func TestProvision_RecordsAgentIDMap(t *testing.T) {
	mem := store.NewMemory()
	seedScenarioConfig(t, mem, "telco-noc")
	p := New(mem, &fakeRuntime{}, "http://conductor.local")

	require.NoError(t, p.Provision(context.Background(), "telco-noc", nil))

	id, ok := p.AgentID("orchestrator")
	require.True(t, ok)
	assert.Equal(t, "id-orchestrator", id)
	assert.Len(t, p.AgentIDs(), 5)
}

func TestProvision_UnknownScenarioErrors(t *testing.T) {
	p := New(store.NewMemory(), &fakeRuntime{}, "http://conductor.local")
	assert.Error(t, p.Provision(context.Background(), "missing", nil))
}

// Every generated tool spec must constrain the X-Graph routing header with
// a single-value enum; a `default` would be advisory and agents would send
// plausible wrong values, silently routing queries to the wrong scenario.
func TestToolTemplates_UseEnumNotDefault(t *testing.T) {
	p := New(store.NewMemory(), &fakeRuntime{}, "http://conductor.local")

	for _, template := range []string{"graph_query_tool.json", "telemetry_query_tool.json"} {
		spec, err := p.fillToolTemplate(template, "telco-noc-topology", "native-graph")
		require.NoError(t, err, template)

		param := findHeaderParam(t, spec, "X-Graph")
		schema, ok := param["schema"].(map[string]any)
		require.True(t, ok, "%s: X-Graph parameter has no schema", template)

		enum, ok := schema["enum"].([]any)
		require.True(t, ok, "%s: X-Graph schema must use enum", template)
		require.Len(t, enum, 1, template)
		assert.Equal(t, "telco-noc-topology", enum[0], template)

		_, hasDefault := schema["default"]
		assert.False(t, hasDefault, "%s: X-Graph schema must not carry a default", template)
	}
}

func findHeaderParam(t *testing.T, spec map[string]any, name string) map[string]any {
	t.Helper()
	paths, _ := spec["paths"].(map[string]any)
	for _, path := range paths {
		ops, _ := path.(map[string]any)
		for _, op := range ops {
			opMap, ok := op.(map[string]any)
			if !ok {
				continue
			}
			params, _ := opMap["parameters"].([]any)
			for _, p := range params {
				pm, _ := p.(map[string]any)
				if pm["name"] == name && pm["in"] == "header" {
					return pm
				}
			}
		}
	}
	t.Fatalf("no %s header parameter found", name)
	return nil
}

func TestComposePrompt_DeterministicAndOrdered(t *testing.T) {
	mem := store.NewMemory()
	seedScenarioConfig(t, mem, "telco-noc")
	p := New(mem, &fakeRuntime{}, "http://conductor.local")
	cfg, err := p.loadScenarioConfig(context.Background(), "telco-noc")
	require.NoError(t, err)

	first, err := p.composePrompt(context.Background(), "telco-noc", "native-graph", cfg, cfg.Agents[0])
	require.NoError(t, err)
	second, err := p.composePrompt(context.Background(), "telco-noc", "native-graph", cfg, cfg.Agents[0])
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Fixed fragment order: core instructions, schema, language notes.
	core := strings.Index(first, "Core Instructions")
	schema := strings.Index(first, "Data Sources")
	lang := strings.Index(first, "Query Language")
	require.True(t, core >= 0 && schema > core && lang > schema, "fragments out of order:\n%s", first)
}

func TestComposePrompt_UploadedPromptReplacesCoreFragment(t *testing.T) {
	mem := store.NewMemory()
	seedScenarioConfig(t, mem, "telco-noc")
	require.NoError(t, mem.Upsert(context.Background(), store.ContainerPrompts, store.Document{
		ID:   models.PromptID("telco-noc", "graph-explorer", 1),
		Body: map[string]any{"content": "You are the custom graph explorer."},
	}))
	p := New(mem, &fakeRuntime{}, "http://conductor.local")
	cfg, err := p.loadScenarioConfig(context.Background(), "telco-noc")
	require.NoError(t, err)

	prompt, err := p.composePrompt(context.Background(), "telco-noc", "native-graph", cfg, cfg.Agents[0])
	require.NoError(t, err)
	assert.Contains(t, prompt, "custom graph explorer")
	assert.NotContains(t, prompt, "Core Instructions")
}

func TestLanguageFragment_SelectsByLastHyphenSegment(t *testing.T) {
	tests := map[string]string{
		"native-graph": "Native Graph Traversal",
		"remote-gql":   "GraphQL",
		"kql":          "KQL",
		"sql":          "SQL",
		"mock":         "Mock CSV",
	}
	for connector, want := range tests {
		frag, err := languageFragment(connector)
		require.NoError(t, err, connector)
		assert.Contains(t, frag, want, connector)
	}

	_, err := languageFragment("unknown-connector")
	assert.Error(t, err)
}
