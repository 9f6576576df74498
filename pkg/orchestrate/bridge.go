// Package orchestrate bridges the external hosted-agent runtime's
// synchronous callback interface to the asynchronous SSE stream the alert
// endpoint serves. Each submitted alert gets a dedicated goroutine that
// drives the runtime to completion and publishes ordered, dense-indexed
// step events; a failed run is retried once on the same conversation
// thread so the second attempt keeps the context the first one built up.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netsentry/conductor/pkg/models"
	"github.com/netsentry/conductor/pkg/runtime"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
)

// AgentResolver supplies the agent name → runtime-id map the provisioner
// maintains. Satisfied by *provision.Provisioner.
type AgentResolver interface {
	AgentID(name string) (string, bool)
}

// Bridge accepts alerts and streams structured run events through the
// shared SSE hub.
type Bridge struct {
	hub              *sse.Hub
	rt               runtime.Runtime
	stub             runtime.Runtime
	agents           AgentResolver
	orchestratorName string
	store            store.Store

	runSeq  atomic.Uint64
	mu      sync.Mutex
	current map[string]*models.Run
}

// New builds a Bridge. st may be nil (runs are not persisted); agents may
// be nil (the orchestrator agent name is used as its runtime id).
func New(hub *sse.Hub, rt runtime.Runtime, agents AgentResolver, orchestratorName string, st store.Store) *Bridge {
	return &Bridge{
		hub:              hub,
		rt:               rt,
		stub:             runtime.NewStub(),
		agents:           agents,
		orchestratorName: orchestratorName,
		store:            st,
		current:          make(map[string]*models.Run),
	}
}

// RunSource is the SSE source tag for a run id.
func RunSource(runID string) string { return "run:" + runID }

// SubmitAlert starts an investigation run for alertText and returns the run
// id plus a subscription already filtered to that run's events — created
// before the run goroutine starts, so the subscriber can never miss
// run_start. The run continues to completion even if the subscriber
// disconnects; publishing to it simply stops.
func (b *Bridge) SubmitAlert(ctx context.Context, alertText, scenarioName string) (string, *sse.Subscription) {
	runID := fmt.Sprintf("run-%d-%d", time.Now().Unix(), b.runSeq.Add(1))
	source := RunSource(runID)
	sub := b.hub.Subscribe(func(s string) bool { return s == source })

	run := &models.Run{
		ID:           runID,
		ScenarioName: scenarioName,
		AlertText:    alertText,
		State:        models.RunStateRunning,
		StartedAt:    time.Now().UTC(),
	}
	b.mu.Lock()
	b.current[runID] = run
	b.mu.Unlock()

	// The run is driven on its own goroutine, detached from the request
	// context: a disconnected subscriber must not cancel an investigation
	// that is already paying for runtime work.
	go b.drive(context.WithoutCancel(ctx), run, source)

	return runID, sub
}

// Run returns the in-memory record for a run id, if the run is known.
func (b *Bridge) Run(runID string) (models.Run, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.current[runID]
	if !ok {
		return models.Run{}, false
	}
	return *r, true
}

// pickRuntime falls back to the deterministic local-dev stub when no real
// runtime endpoint is configured, so the alert flow stays demonstrable
// offline.
func (b *Bridge) pickRuntime() runtime.Runtime {
	if b.rt != nil && b.rt.Configured() {
		return b.rt
	}
	return b.stub
}

func (b *Bridge) orchestratorID() string {
	if b.agents != nil {
		if id, ok := b.agents.AgentID(b.orchestratorName); ok {
			return id
		}
	}
	return b.orchestratorName
}

func (b *Bridge) drive(ctx context.Context, run *models.Run, source string) {
	log := slog.With("run_id", run.ID, "scenario", run.ScenarioName)
	b.hub.Publish(source, sse.KindRunStart, map[string]any{
		"run_id":    run.ID,
		"alert":     run.AlertText,
		"timestamp": run.StartedAt.Format(time.RFC3339),
	})

	rt := b.pickRuntime()
	threadID, err := rt.CreateThread(ctx)
	if err != nil {
		b.finish(run, source, models.RunStateFailed, fmt.Sprintf("create thread: %v", err))
		return
	}
	run.ThreadID = threadID

	if err := rt.PostMessage(ctx, threadID, run.AlertText); err != nil {
		b.finish(run, source, models.RunStateFailed, fmt.Sprintf("post alert: %v", err))
		return
	}

	adapter := &callbackAdapter{bridge: b, run: run, source: source}
	for attempt := 1; attempt <= models.MaxRunAttempts; attempt++ {
		run.Attempt = attempt
		adapter.runFailed = false
		// The runtime restarts its step numbering on every new run; a
		// fresh index map keeps the local indices dense across attempts.
		adapter.indexMap = nil

		if err := rt.CreateRun(ctx, threadID, b.orchestratorID(), adapter); err != nil {
			// Transport-level failure mid-stream: no recovery message can
			// help, the connection itself is gone.
			b.finish(run, source, models.RunStateFailed, fmt.Sprintf("transport: %v", err))
			return
		}

		if !adapter.runFailed {
			elapsed := time.Since(run.StartedAt)
			// State is recorded before the terminal event goes out, so a
			// caller woken by run_complete always observes the final state.
			b.conclude(run, models.RunStateComplete, "")
			b.hub.Publish(source, sse.KindRunComplete, map[string]any{
				"run_id": run.ID,
				"steps":  len(run.Steps),
				"tokens": adapter.tokens,
				"time":   elapsed.Seconds(),
			})
			return
		}

		if attempt < models.MaxRunAttempts {
			// Retry on the same thread: the recovery message tells the
			// orchestrator what failed and keeps the conversation context
			// the first attempt accumulated. No error event yet.
			log.Warn("Run attempt failed, retrying on same thread", "attempt", attempt)
			recovery := fmt.Sprintf(
				"The previous investigation attempt failed (%s). Please retry the investigation, continuing from what you already learned. If a sub-agent keeps failing, continue with the remaining agents and produce a partial report.",
				adapter.failureSummary())
			if err := rt.PostMessage(ctx, threadID, recovery); err != nil {
				b.finish(run, source, models.RunStateFailed, fmt.Sprintf("post recovery message: %v", err))
				return
			}
		}
	}

	b.finish(run, source, models.RunStateFailed,
		fmt.Sprintf("run failed after %d attempts: %s", models.MaxRunAttempts, adapter.failureSummary()))
}

// finish records the run's final state, then emits the terminal error event.
func (b *Bridge) finish(run *models.Run, source string, state models.RunState, errMsg string) {
	b.conclude(run, state, errMsg)
	b.hub.Publish(source, sse.KindError, map[string]any{"message": errMsg})
}

func (b *Bridge) conclude(run *models.Run, state models.RunState, errMsg string) {
	now := time.Now().UTC()
	b.mu.Lock()
	run.State = state
	run.Error = errMsg
	run.EndedAt = &now
	snapshot := *run
	b.mu.Unlock()

	if b.store == nil {
		return
	}
	body, err := runDocument(snapshot)
	if err != nil {
		slog.Warn("Failed to encode run for persistence", "run_id", run.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.store.Upsert(ctx, store.ContainerInteractions, store.Document{ID: run.ID, Body: body}); err != nil {
		slog.Warn("Failed to persist run record", "run_id", run.ID, "error", err)
	}
}

func runDocument(run models.Run) (map[string]any, error) {
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// callbackAdapter receives the runtime's synchronous callbacks on the run
// goroutine and republishes them as SSE events. It re-indexes steps so
// indices stay dense and monotonic across retry attempts — the runtime
// restarts its own numbering at zero on each new run.
type callbackAdapter struct {
	bridge *Bridge
	run    *models.Run
	source string

	runFailed  bool
	tokens     int
	indexMap   map[int]int
	lastErrors []string
}

func (a *callbackAdapter) localIndex(runtimeIndex int) int {
	if a.indexMap == nil {
		a.indexMap = make(map[int]int)
	}
	if idx, ok := a.indexMap[runtimeIndex]; ok {
		return idx
	}
	idx := len(a.run.Steps)
	a.indexMap[runtimeIndex] = idx
	return idx
}

func (a *callbackAdapter) OnThreadRunUpdate(status string) {
	switch status {
	case "failed", "cancelled", "expired":
		a.runFailed = true
	case "in_progress", "queued":
		a.bridge.hub.Publish(a.source, sse.KindStepThinking, map[string]any{"status": status})
	}
}

func (a *callbackAdapter) OnRunStepStart(stepIndex int, agentName string) {
	idx := a.localIndex(stepIndex)
	now := time.Now().UTC()
	a.bridge.mu.Lock()
	a.run.Steps = append(a.run.Steps, models.RunStep{StepIndex: idx, AgentName: agentName, StartTS: now})
	a.bridge.mu.Unlock()
	a.bridge.hub.Publish(a.source, sse.KindStepStart, map[string]any{
		"step_index": idx,
		"agent_name": agentName,
	})
}

func (a *callbackAdapter) OnRunStepComplete(stepIndex int, agentName, query, response string, err error) {
	idx := a.localIndex(stepIndex)
	now := time.Now().UTC()

	a.bridge.mu.Lock()
	var duration float64
	if idx < len(a.run.Steps) {
		step := &a.run.Steps[idx]
		step.EndTS = &now
		step.Query = query
		step.Response = response
		if err != nil {
			step.Error = err.Error()
		}
		duration = now.Sub(step.StartTS).Seconds()
	}
	a.bridge.mu.Unlock()

	payload := map[string]any{
		"step_index": idx,
		"agent_name": agentName,
		"duration":   duration,
		"query":      query,
		"response":   response,
	}
	// A failed step is reported, not fatal: the orchestrator's system
	// prompt tells it to continue with the remaining sub-agents.
	if err != nil {
		payload["error"] = true
		payload["error_message"] = err.Error()
		a.lastErrors = append(a.lastErrors, fmt.Sprintf("%s: %v", agentName, err))
	}
	a.bridge.hub.Publish(a.source, sse.KindStepComplete, payload)
}

func (a *callbackAdapter) OnMessageDone(text string) {
	a.bridge.mu.Lock()
	a.run.Message = text
	a.bridge.mu.Unlock()
	a.bridge.hub.Publish(a.source, sse.KindMessage, map[string]any{"text": text})
}

func (a *callbackAdapter) failureSummary() string {
	if len(a.lastErrors) == 0 {
		return "the run reached a failed terminal status without a step-level error"
	}
	summary := ""
	for i, e := range a.lastErrors {
		if i > 0 {
			summary += "; "
		}
		summary += e
	}
	return summary
}
