package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// stubWalkthrough is the deterministic 4-agent sequence the Stub runs for
// local development when no real runtime is configured: orchestrator,
// graph explorer, telemetry, runbook knowledge.
var stubWalkthrough = []string{"orchestrator", "graph-explorer", "telemetry-analyst", "runbook-knowledge"}

// Stub is a local-dev Runtime producing a deterministic walkthrough instead
// of talking to a real hosted-agent runtime. Agent CRUD is a no-op that
// just echoes back a generated id — there is nothing to provision against.
type Stub struct {
	// StepDelay paces each simulated step so a local SSE client can observe
	// discrete progress events rather than receiving the whole run at once.
	StepDelay time.Duration
}

// NewStub builds a Stub with a sensible default step pacing.
func NewStub() *Stub {
	return &Stub{StepDelay: 150 * time.Millisecond}
}

func (s *Stub) Configured() bool { return false }

func (s *Stub) CreateOrUpdateAgent(_ context.Context, spec AgentSpec) (string, error) {
	return "stub-" + spec.Name, nil
}

func (s *Stub) CreateThread(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Stub) PostMessage(context.Context, string, string) error { return nil }

func (s *Stub) CreateRun(ctx context.Context, _, _ string, cb Callback) error {
	cb.OnThreadRunUpdate("in_progress")
	for i, agentName := range stubWalkthrough {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.StepDelay):
		}
		cb.OnRunStepStart(i, agentName)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.StepDelay):
		}
		response := fmt.Sprintf("%s investigated and found nothing unusual", agentName)
		cb.OnRunStepComplete(i, agentName, "investigate alert", response, nil)
	}
	cb.OnMessageDone("Investigation complete: no anomalies found across graph, telemetry, or known runbooks.")
	cb.OnThreadRunUpdate("completed")
	return nil
}
