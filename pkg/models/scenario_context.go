// Package models holds the runtime domain types shared across Conductor's
// packages: per-request scenario context, prompt documents, and
// investigation runs. Persisted scenario/config shapes live in pkg/config
// because they are parsed from the same YAML manifests as system config.
package models

// ScenarioContext is a per-request, immutable record derived from the
// inbound X-Graph routing header (see pkg/scenario's resolver). It is
// never persisted and never shared across requests.
type ScenarioContext struct {
	GraphName         string
	GraphDatabase     string
	TelemetryDatabase string
	TelemetryPrefix   string
	PromptsDatabase   string
	PromptsContainer  string
	BackendType       string
	// TelemetryBackendType routes /query/telemetry; scenarios may declare
	// a telemetry data source on a different connector than their graph.
	TelemetryBackendType string
	ScenarioName         string
}
