package scenario

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
)

var nameRegexp = regexp.MustCompile(config.ScenarioNamePattern)

// ValidateName enforces the scenario-name constraints: the shape
// regex plus the reserved-suffix check (a name ending in one of the
// derived-resource suffixes would collide with DeriveResourceNames output).
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w: scenario name %q must match %s", config.ErrInvalidValue, name, config.ScenarioNamePattern)
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("%w: scenario name %q contains consecutive hyphens", config.ErrInvalidValue, name)
	}
	for _, suffix := range config.ReservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return fmt.Errorf("%w: scenario name %q ends in reserved suffix %q", config.ErrInvalidValue, name, suffix)
		}
	}
	return nil
}

// Provisioner rebuilds agent tool wiring for a scenario. Defined
// here, implemented by pkg/provision, so the lifecycle doesn't import the
// provisioner's dependencies (templates, runtime client) just to drive
// activation progress events.
type Provisioner interface {
	Provision(ctx context.Context, scenarioName string, progress func(step, detail string, pct int)) error
}

// ErrActivationBusy is returned by ActivateScenario when another
// activation is already in progress.
var ErrActivationBusy = fmt.Errorf("%w: an activation is already in progress", config.ErrInvalidReference)

// Registry is the scenario lifecycle service.
type Registry struct {
	store       store.Store
	provisioner Provisioner
	hub         *sse.Hub

	activating sync.Mutex
	busy       bool
	busyMu     sync.Mutex
}

// NewRegistry builds a Registry. provisioner and hub may be nil; nil hub
// means ActivateScenario still runs but emits no progress events (used by
// callers that only need the registry CRUD operations).
func NewRegistry(s store.Store, provisioner Provisioner, hub *sse.Hub) *Registry {
	return &Registry{store: s, provisioner: provisioner, hub: hub}
}

// ListScenarios returns every registered scenario sorted by UpdatedAt
// descending.
func (r *Registry) ListScenarios(ctx context.Context) ([]config.Scenario, error) {
	docs, err := r.store.Query(ctx, store.ContainerScenarios, nil)
	if err != nil {
		return nil, fmt.Errorf("scenario: list: %w", err)
	}
	scenarios := make([]config.Scenario, 0, len(docs))
	for _, doc := range docs {
		var s config.Scenario
		if err := decodeScenario(doc.Body, &s); err != nil {
			continue // a malformed record must not fail the whole listing
		}
		scenarios = append(scenarios, s)
	}
	sortScenariosByUpdatedAtDesc(scenarios)
	return scenarios, nil
}

// GetScenario fetches one scenario by name.
func (r *Registry) GetScenario(ctx context.Context, name string) (config.Scenario, error) {
	doc, err := r.store.Get(ctx, store.ContainerScenarios, name)
	if err != nil {
		return config.Scenario{}, err
	}
	var s config.Scenario
	if err := decodeScenario(doc.Body, &s); err != nil {
		return config.Scenario{}, fmt.Errorf("scenario: decode %s: %w", name, err)
	}
	return s, nil
}

// SaveScenario upserts a scenario record: idempotent,
// overwrites in place on name collision.
func (r *Registry) SaveScenario(ctx context.Context, name, displayName, description string) (config.Scenario, error) {
	if err := ValidateName(name); err != nil {
		return config.Scenario{}, err
	}

	now := time.Now().UTC()
	existing, err := r.GetScenario(ctx, name)
	createdAt := now
	uploadStatus := map[config.UploadKind]config.UploadStatus{}
	if err == nil {
		createdAt = existing.CreatedAt
		uploadStatus = existing.UploadStatus
	}

	s := config.Scenario{
		Name:         name,
		DisplayName:  displayName,
		Description:  description,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
		Resources:    config.DeriveResourceNames(name),
		UploadStatus: uploadStatus,
	}

	body, err := encodeScenario(s)
	if err != nil {
		return config.Scenario{}, err
	}
	if err := r.store.Upsert(ctx, store.ContainerScenarios, store.Document{ID: name, Body: body}); err != nil {
		return config.Scenario{}, fmt.Errorf("scenario: save %s: %w", name, err)
	}
	return s, nil
}

// RecordUpload updates a scenario's per-kind upload status — called by
// pkg/ingest after a kind finishes (or fails).
func (r *Registry) RecordUpload(ctx context.Context, name string, kind config.UploadKind, status config.UploadStatus) error {
	s, err := r.GetScenario(ctx, name)
	if err != nil {
		return err
	}
	if s.UploadStatus == nil {
		s.UploadStatus = map[config.UploadKind]config.UploadStatus{}
	}
	s.UploadStatus[kind] = status
	s.UpdatedAt = time.Now().UTC()

	body, err := encodeScenario(s)
	if err != nil {
		return err
	}
	return r.store.Upsert(ctx, store.ContainerScenarios, store.Document{ID: name, Body: body})
}

// DeleteScenario removes the registry record only; underlying data
// resources are left intact.
func (r *Registry) DeleteScenario(ctx context.Context, name string) error {
	return r.store.Delete(ctx, store.ContainerScenarios, name)
}

// ActivateScenario runs the provisioner under a process-wide activation
// mutex, emitting progress through the SSE hub. Returns
// ErrActivationBusy immediately (without blocking) if another activation
// is already running — unrelated queries are never affected.
func (r *Registry) ActivateScenario(ctx context.Context, name string) error {
	if _, err := r.GetScenario(ctx, name); err != nil {
		return err
	}

	r.busyMu.Lock()
	if r.busy {
		r.busyMu.Unlock()
		return ErrActivationBusy
	}
	r.busy = true
	r.busyMu.Unlock()

	r.activating.Lock()
	defer func() {
		r.activating.Unlock()
		r.busyMu.Lock()
		r.busy = false
		r.busyMu.Unlock()
	}()

	progress := func(step, detail string, pct int) {
		if r.hub == nil {
			return
		}
		r.hub.Publish("activation:"+name, sse.KindProgress, map[string]any{
			"step": step, "detail": detail, "pct": pct,
		})
	}

	if r.provisioner == nil {
		progress("skipped", "no provisioner configured", 100)
		if r.hub != nil {
			r.hub.Publish("activation:"+name, sse.KindComplete, map[string]any{"scenario": name})
		}
		return nil
	}

	progress("activating", "rebuilding agent tool wiring", 0)
	if err := r.provisioner.Provision(ctx, name, progress); err != nil {
		if r.hub != nil {
			r.hub.Publish("activation:"+name, sse.KindError, map[string]any{"message": err.Error()})
		}
		return fmt.Errorf("scenario: activate %s: %w", name, err)
	}
	if r.hub != nil {
		r.hub.Publish("activation:"+name, sse.KindComplete, map[string]any{"scenario": name})
	}
	return nil
}

func sortScenariosByUpdatedAtDesc(s []config.Scenario) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].UpdatedAt.After(s[j-1].UpdatedAt); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
