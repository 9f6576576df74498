// Package provision creates or updates the set of agents on the external
// hosted-agent runtime for one scenario: it composes each agent's system
// prompt from reusable fragments, fills per-scenario tool-spec templates,
// and wires connected-agent references so the orchestrator can delegate to
// its sub-agents. It also maintains the agent-id map the orchestration
// bridge consults when starting a run.
package provision

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/models"
	"github.com/netsentry/conductor/pkg/runtime"
	"github.com/netsentry/conductor/pkg/store"
)

//go:embed fragments templates
var assetsFS embed.FS

// queryLanguageDescriptions maps a connector key to the one-line language
// description substituted into tool-spec templates.
var queryLanguageDescriptions = map[string]string{
	"native-graph": "Native graph traversal queries (Gremlin-style). Scope with .limit().",
	"remote-gql":   "GraphQL query documents; pass variables via kwargs.",
	"kql":          "Kusto Query Language. Bound the time range and row count.",
	"sql":          "SQL SELECT statements only. Always include a LIMIT clause.",
	"mock":         "Plain-text queries matched against canned patterns over local CSV fixtures.",
}

// Provisioner rebuilds agent tool wiring for a scenario. One instance is
// shared process-wide; the activation mutex in pkg/scenario guarantees
// Provision never runs concurrently with itself.
type Provisioner struct {
	store   store.Store
	runtime runtime.Runtime

	// baseURL is the externally-reachable base URL of this process, baked
	// into every generated tool spec so agent tool calls route back here.
	baseURL string

	mu       sync.RWMutex
	agentIDs map[string]string
}

// New builds a Provisioner publishing tool specs that point at baseURL.
func New(s store.Store, rt runtime.Runtime, baseURL string) *Provisioner {
	return &Provisioner{
		store:    s,
		runtime:  rt,
		baseURL:  strings.TrimRight(baseURL, "/"),
		agentIDs: make(map[string]string),
	}
}

// AgentID returns the runtime id recorded for an agent name by the most
// recent Provision call, if any.
func (p *Provisioner) AgentID(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.agentIDs[name]
	return id, ok
}

// AgentIDs returns a copy of the current name → runtime-id map.
func (p *Provisioner) AgentIDs() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.agentIDs))
	for k, v := range p.agentIDs {
		out[k] = v
	}
	return out
}

// Provision creates or updates every agent the scenario declares,
// sub-agents first and the orchestrator last — the orchestrator's
// connected-agent tool list references sub-agents that must already exist.
func (p *Provisioner) Provision(ctx context.Context, scenarioName string, progress func(step, detail string, pct int)) error {
	if progress == nil {
		progress = func(string, string, int) {}
	}

	cfg, err := p.loadScenarioConfig(ctx, scenarioName)
	if err != nil {
		return err
	}
	progress("loaded_config", scenarioName, 5)

	connector := graphConnector(cfg)
	resources := config.DeriveResourceNames(scenarioName)

	subAgents, orchestrators := splitAgents(cfg.Agents)
	if len(orchestrators) != 1 {
		return fmt.Errorf("scenario %s declares %d orchestrator agents, want exactly 1", scenarioName, len(orchestrators))
	}
	ordered := append(subAgents, orchestrators[0])

	total := len(ordered)
	ids := make(map[string]string, total)
	for i, agent := range ordered {
		spec, err := p.buildAgentSpec(ctx, scenarioName, connector, resources, cfg, agent)
		if err != nil {
			return fmt.Errorf("provision agent %s: %w", agent.Name, err)
		}
		id, err := p.runtime.CreateOrUpdateAgent(ctx, spec)
		if err != nil {
			return fmt.Errorf("provision agent %s: %w", agent.Name, err)
		}
		ids[agent.Name] = id
		progress("agent_provisioned", agent.Name, 5+(90*(i+1))/total)
	}

	p.mu.Lock()
	p.agentIDs = ids
	p.mu.Unlock()

	progress("agent_map_written", fmt.Sprintf("%d agents", len(ids)), 100)
	return nil
}

func (p *Provisioner) loadScenarioConfig(ctx context.Context, scenarioName string) (config.ScenarioConfig, error) {
	doc, err := p.store.Get(ctx, store.ContainerScenarioConfigs, scenarioName)
	if err != nil {
		return config.ScenarioConfig{}, fmt.Errorf("%w: scenario config for %s", config.ErrScenarioNotFound, scenarioName)
	}
	var cfg config.ScenarioConfig
	if err := decodeConfig(doc.Body, &cfg); err != nil {
		return config.ScenarioConfig{}, err
	}
	return cfg, nil
}

// graphConnector resolves the scenario's graph data-source connector key,
// defaulting to mock when the manifest declares none.
func graphConnector(cfg config.ScenarioConfig) string {
	if ds, ok := cfg.DataSources["graph"]; ok && ds.Type != "" {
		return ds.Type
	}
	return "mock"
}

// splitAgents partitions declared agents into sub-agents and orchestrators,
// preserving declaration order within each group.
func splitAgents(agents []config.AgentDefinition) (subs, orchestrators []config.AgentDefinition) {
	for _, a := range agents {
		if a.Orchestrator {
			orchestrators = append(orchestrators, a)
		} else {
			subs = append(subs, a)
		}
	}
	return subs, orchestrators
}

func (p *Provisioner) buildAgentSpec(ctx context.Context, scenarioName, connector string, resources config.ResourceNames, cfg config.ScenarioConfig, agent config.AgentDefinition) (runtime.AgentSpec, error) {
	instructions, err := p.composePrompt(ctx, scenarioName, connector, cfg, agent)
	if err != nil {
		return runtime.AgentSpec{}, err
	}

	tools, err := p.buildTools(resources, connector, agent)
	if err != nil {
		return runtime.AgentSpec{}, err
	}

	return runtime.AgentSpec{
		Name:         agent.Name,
		Instructions: instructions,
		Tools:        tools,
	}, nil
}

// buildTools translates an agent's declared tool keys plus its
// connected-agent list into runtime tool descriptors.
func (p *Provisioner) buildTools(resources config.ResourceNames, connector string, agent config.AgentDefinition) ([]runtime.Tool, error) {
	var tools []runtime.Tool
	for _, key := range agent.Tools {
		switch key {
		case "graph_query":
			spec, err := p.fillToolTemplate("graph_query_tool.json", resources.Graph, connector)
			if err != nil {
				return nil, err
			}
			tools = append(tools, runtime.Tool{Kind: runtime.ToolKindOpenAPI, OpenAPISpec: spec})
		case "telemetry_query":
			spec, err := p.fillToolTemplate("telemetry_query_tool.json", resources.Graph, connector)
			if err != nil {
				return nil, err
			}
			tools = append(tools, runtime.Tool{Kind: runtime.ToolKindOpenAPI, OpenAPISpec: spec})
		case "runbooks_search":
			tools = append(tools, runtime.Tool{Kind: runtime.ToolKindAzureAISearch, SearchIndex: resources.RunbooksIndex})
		case "tickets_search":
			tools = append(tools, runtime.Tool{Kind: runtime.ToolKindAzureAISearch, SearchIndex: resources.TicketsIndex})
		default:
			return nil, fmt.Errorf("%w: unknown tool key %q on agent %s", config.ErrInvalidReference, key, agent.Name)
		}
	}
	for _, connected := range agent.ConnectedAgents {
		tools = append(tools, runtime.Tool{Kind: runtime.ToolKindConnectedAgent, ConnectedAgentName: connected})
	}
	return tools, nil
}

// fillToolTemplate loads a JSON tool-spec template and substitutes the
// {base_url}, {graph_name}, and {query_language_description} placeholders.
// The graph name lands inside a single-value `enum` on the X-Graph header
// parameter — an enum is a constraint the agent must satisfy, where a
// `default` is only a hint it frequently ignores, silently routing the
// call to the wrong scenario.
func (p *Provisioner) fillToolTemplate(name, graphName, connector string) (map[string]any, error) {
	raw, err := assetsFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("load tool template %s: %w", name, err)
	}
	desc, ok := queryLanguageDescriptions[connector]
	if !ok {
		desc = "Backend-native query strings."
	}
	filled := strings.NewReplacer(
		"{base_url}", p.baseURL,
		"{graph_name}", graphName,
		"{query_language_description}", desc,
	).Replace(string(raw))

	var spec map[string]any
	if err := json.Unmarshal([]byte(filled), &spec); err != nil {
		return nil, fmt.Errorf("tool template %s produced invalid JSON: %w", name, err)
	}
	return spec, nil
}

// composePrompt assembles an agent's system prompt from its fragments in a
// fixed order: core instructions, scenario schema, query-language notes.
// A scenario-uploaded prompt document (id "{scenario}__{agent}__v1")
// replaces the built-in core fragment when present.
func (p *Provisioner) composePrompt(ctx context.Context, scenarioName, connector string, cfg config.ScenarioConfig, agent config.AgentDefinition) (string, error) {
	core, err := p.corePromptFragment(ctx, scenarioName, agent.Name)
	if err != nil {
		return "", err
	}

	parts := []string{core}
	if schema := schemaFragment(cfg); schema != "" {
		parts = append(parts, schema)
	}
	if lang, err := languageFragment(connector); err == nil {
		parts = append(parts, lang)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (p *Provisioner) corePromptFragment(ctx context.Context, scenarioName, agentName string) (string, error) {
	doc, err := p.store.Get(ctx, store.ContainerPrompts, models.PromptID(scenarioName, agentName, 1))
	if err == nil {
		if content, ok := doc.Body["content"].(string); ok && content != "" {
			return content, nil
		}
	}
	raw, err := assetsFS.ReadFile("fragments/core_instructions.md")
	if err != nil {
		return "", fmt.Errorf("load core prompt fragment: %w", err)
	}
	return string(raw), nil
}

// languageFragment selects the query-language fragment by the last
// hyphen-segment of the connector key: "native-graph" -> language_graph,
// "remote-gql" -> language_gql, "kql"/"sql"/"mock" as-is.
func languageFragment(connector string) (string, error) {
	segment := connector
	if idx := strings.LastIndex(connector, "-"); idx >= 0 {
		segment = connector[idx+1:]
	}
	raw, err := assetsFS.ReadFile("fragments/language_" + segment + ".md")
	if err != nil {
		return "", fmt.Errorf("no language fragment for connector %s: %w", connector, err)
	}
	return string(raw), nil
}

// schemaFragment generates the schema section of the system prompt from
// the scenario manifest's declarations, so it never needs hand
// maintenance. Empty when the manifest declares nothing schema-shaped.
func schemaFragment(cfg config.ScenarioConfig) string {
	var b strings.Builder

	if len(cfg.DataSources) > 0 {
		keys := make([]string, 0, len(cfg.DataSources))
		for k := range cfg.DataSources {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("# Data Sources\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s (connector: %s)\n", k, cfg.DataSources[k].Type)
		}
	}

	if len(cfg.SearchIndexes) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("# Search Indexes\n\n")
		for _, idx := range cfg.SearchIndexes {
			fmt.Fprintf(&b, "- %s: index %q (%s)\n", idx.Name, idx.Index, idx.Kind)
		}
	}

	if hint, ok := cfg.GraphVisualHint["vertex_labels"].([]any); ok && len(hint) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("# Graph Vertex Labels\n\n")
		for _, l := range hint {
			fmt.Fprintf(&b, "- %v\n", l)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// decodeConfig converts a stored document body into a ScenarioConfig via a
// YAML round-trip — ScenarioConfig carries yaml tags (it is parsed from the
// same manifests the ingestion pipeline reads), not json tags.
func decodeConfig(body map[string]any, out *config.ScenarioConfig) error {
	raw, err := yaml.Marshal(body)
	if err != nil {
		return fmt.Errorf("re-encode scenario config body: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode scenario config body: %w", err)
	}
	return nil
}
