package models

import "time"

// RunState is the terminal (or in-flight) state of an investigation run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateComplete  RunState = "complete"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// MaxRunAttempts bounds the orchestration bridge's retry-on-failed-run loop
// (see pkg/orchestrate). A run that fails on its final attempt is terminal.
const MaxRunAttempts = 2

// Run is a single agent investigation against one alert: a monotonic run id,
// the alert text, the external runtime's thread id, its ordered steps, and
// a terminal state. A run's events are published on the shared SSE hub
// under the run's own source tag (see pkg/sse) — when it terminates,
// subscribers receive a terminal event.
type Run struct {
	ID           string     `json:"id"`
	ScenarioName string     `json:"scenario_name"`
	AlertText    string     `json:"alert"`
	ThreadID     string     `json:"thread_id"`
	State        RunState   `json:"state"`
	Attempt      int        `json:"attempt"`
	Steps        []RunStep  `json:"steps"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// RunStep is one sub-agent invocation within a run. StepIndex is dense and
// monotonically increasing within the run: the orchestration bridge is the
// sole writer and assigns indexes in publication order.
type RunStep struct {
	StepIndex int        `json:"step_index"`
	AgentName string     `json:"agent_name"`
	StartTS   time.Time  `json:"start_ts"`
	EndTS     *time.Time `json:"end_ts,omitempty"`
	Query     string     `json:"query,omitempty"`
	Response  string     `json:"response,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Failed reports whether the step recorded a per-agent failure. A failed
// step does NOT terminate the run — the orchestrator is prompted to
// continue with the remaining sub-agents.
func (s RunStep) Failed() bool { return s.Error != "" }
