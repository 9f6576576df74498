package config

import "time"

// Defaults contains system-wide default configuration values used when a
// scenario or backend doesn't specify its own.
type Defaults struct {
	BackendType       string        `yaml:"backend_type,omitempty"`
	GraphDatabase     string        `yaml:"graph_database,omitempty"`
	TelemetryDatabase string        `yaml:"telemetry_database,omitempty"`
	PromptsDatabase   string        `yaml:"prompts_database,omitempty"`
	RequestTimeout    time.Duration `yaml:"request_timeout,omitempty"`
	SSETailSize       int           `yaml:"sse_tail_size,omitempty" validate:"omitempty,min=1"`
	SSEQueueSize      int           `yaml:"sse_queue_size,omitempty" validate:"omitempty,min=1"`
}

// DataSourceConfig declares one data source a scenario wires into its
// backend dispatch: a connector type plus an opaque config block.
type DataSourceConfig struct {
	Type   string         `yaml:"type" validate:"required"`
	Config map[string]any `yaml:"config,omitempty"`
}

// AgentDefinition describes one specialist agent a scenario provisions:
// its role, model, prompt file reference, and tool wiring.
type AgentDefinition struct {
	Name            string   `yaml:"name" validate:"required"`
	Role            string   `yaml:"role" validate:"required"`
	Model           string   `yaml:"model,omitempty"`
	PromptFile      string   `yaml:"prompt_file,omitempty"`
	Tools           []string `yaml:"tools,omitempty"`
	Orchestrator    bool     `yaml:"orchestrator,omitempty"`
	ConnectedAgents []string `yaml:"connected_agents,omitempty"`
}

// SearchIndexDeclaration declares one of a scenario's search indexes
// (runbooks or historical tickets).
type SearchIndexDeclaration struct {
	Name  string `yaml:"name" validate:"required"`
	Kind  string `yaml:"kind" validate:"required"` // "runbooks" or "tickets"
	Index string `yaml:"index" validate:"required"`
}

// ScenarioConfig is the parsed content of a scenario's declared manifest:
// the source of truth for all per-scenario routing and provisioning
// decisions. Persisted in the document store keyed by scenario name.
type ScenarioConfig struct {
	ScenarioName    string                   `yaml:"scenario_name" validate:"required"`
	EntitiesPath    string                   `yaml:"entities_path,omitempty"`
	TelemetryPath   string                   `yaml:"telemetry_path,omitempty"`
	PromptsPath     string                   `yaml:"prompts_path,omitempty"`
	DataSources     map[string]DataSourceConfig `yaml:"data_sources,omitempty"`
	Agents          []AgentDefinition        `yaml:"agents" validate:"required,min=1,dive"`
	SearchIndexes   []SearchIndexDeclaration `yaml:"search_indexes,omitempty"`
	GraphVisualHint map[string]any           `yaml:"graph_visual_hint,omitempty"`
}

// ResourceNames is the deterministic set of underlying resource names
// derived from a scenario name. Given scenario name S: graph is
// "S-topology", telemetry container prefix is "S", prompts container is
// "S". No free-form override is allowed at read time.
type ResourceNames struct {
	Graph          string `json:"graph"`
	Telemetry      string `json:"telemetry"`
	RunbooksIndex  string `json:"runbooks_index"`
	TicketsIndex   string `json:"tickets_index"`
	Prompts        string `json:"prompts"`
}

// DeriveResourceNames computes the deterministic resource-name mapping for
// a scenario name.
func DeriveResourceNames(scenarioName string) ResourceNames {
	return ResourceNames{
		Graph:         scenarioName + "-topology",
		Telemetry:     scenarioName,
		RunbooksIndex: scenarioName + "-runbooks-index",
		TicketsIndex:  scenarioName + "-tickets-index",
		Prompts:       scenarioName,
	}
}

// UploadKind enumerates the five upload kinds the ingestion pipeline accepts.
type UploadKind string

const (
	UploadKindGraph     UploadKind = "graph"
	UploadKindTelemetry UploadKind = "telemetry"
	UploadKindRunbooks  UploadKind = "runbooks"
	UploadKindTickets   UploadKind = "tickets"
	UploadKindPrompts   UploadKind = "prompts"
)

// UploadStatus records the outcome of the most recent upload of a given kind.
type UploadStatus struct {
	Status    string    `json:"status"` // "pending", "in_progress", "complete", "failed"
	Timestamp time.Time `json:"timestamp"`
	Counts    map[string]int `json:"counts,omitempty"`
}

// Scenario is the persisted registry record for a named investigation
// scenario. id == name. Created on first save, mutated in place on
// re-save, destroyed by explicit delete — deleting the record does not
// delete the underlying data resources it names.
type Scenario struct {
	Name        string                        `json:"name"`
	DisplayName string                        `json:"display_name"`
	Description string                        `json:"description,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
	Resources   ResourceNames                 `json:"resources"`
	UploadStatus map[UploadKind]UploadStatus  `json:"upload_status,omitempty"`
}

// ScenarioNamePattern is documented here, compiled in pkg/scenario, which
// also applies the reserved-suffix and consecutive-hyphen checks that a
// plain RE2 pattern (no lookahead) cannot express. Names are 2-50 chars,
// lowercase alphanumeric with interior hyphens.
const ScenarioNamePattern = `^[a-z0-9][a-z0-9-]{0,48}[a-z0-9]$`

// ReservedSuffixes are forbidden as the final segment of a scenario name
// because they collide with derived resource-name suffixes.
var ReservedSuffixes = []string{"-topology", "-telemetry", "-prompts", "-runbooks", "-tickets"}
