// Package runtime defines the contract Conductor assumes of the external
// hosted-agent runtime: agent CRUD, thread/message/run lifecycle, and
// a synchronous callback interface the orchestration bridge (pkg/orchestrate)
// adapts to an async SSE stream. The runtime is an HTTP+JSON REST
// collaborator; the wire shapes here mirror its thread/message/run surface.
package runtime

import "context"

// ToolKind enumerates the three tool types the runtime contract supports
//.
type ToolKind string

const (
	ToolKindOpenAPI        ToolKind = "openapi"
	ToolKindAzureAISearch  ToolKind = "azure_ai_search"
	ToolKindConnectedAgent ToolKind = "connected_agent"
)

// Tool is one tool descriptor attached to an agent spec.
type Tool struct {
	Kind ToolKind

	// OpenAPISpec is the filled-in OpenAPI document (openapi tools only).
	OpenAPISpec map[string]any

	// SearchIndex names the search index this tool queries (azure_ai_search only).
	SearchIndex string

	// ConnectedAgentName references another agent by name (connected_agent only).
	ConnectedAgentName string
}

// AgentSpec is the create-or-update payload for one agent.
type AgentSpec struct {
	Name         string
	Instructions string
	Tools        []Tool
}

// Callback is the set of synchronous event callbacks the runtime invokes
// while driving a run. The bridge implements these and
// pushes structured records onto a queue drained by the SSE handler.
type Callback interface {
	OnThreadRunUpdate(status string)
	OnRunStepStart(stepIndex int, agentName string)
	OnRunStepComplete(stepIndex int, agentName string, query, response string, err error)
	OnMessageDone(text string)
}

// Runtime is the external agent-runtime contract.
type Runtime interface {
	// CreateOrUpdateAgent is idempotent by name.
	CreateOrUpdateAgent(ctx context.Context, spec AgentSpec) (agentID string, err error)

	// CreateThread starts a new conversation thread.
	CreateThread(ctx context.Context) (threadID string, err error)

	// PostMessage appends a message to an existing thread.
	PostMessage(ctx context.Context, threadID, text string) error

	// CreateRun starts a run against orchestratorAgentID on threadID,
	// driving cb synchronously until the run reaches a terminal status.
	// Implementations run this on the calling goroutine; callers that need
	// async behavior (pkg/orchestrate) drive it from a dedicated goroutine.
	CreateRun(ctx context.Context, threadID, orchestratorAgentID string, cb Callback) error

	// Configured reports whether the runtime has enough configuration to
	// operate against a real backend. A false
	// return tells the bridge to fall back to the local-dev Stub.
	Configured() bool
}
