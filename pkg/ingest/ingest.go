// Package ingest implements the streaming upload path: it extracts an
// uploaded archive for one of the five data kinds, validates it against its
// declared manifest, creates or updates the target resources in the
// external stores, and reports fine-grained progress as SSE events.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/netsentry/conductor/pkg/backend"
	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
)

// Pipeline runs uploads end to end. All progress flows through the shared
// SSE hub under the source tag the caller supplies.
type Pipeline struct {
	hub       *sse.Hub
	backends  *backend.Registry
	resolver  *scenario.Resolver
	scenarios *scenario.Registry
	store     store.Store
	blobs     BlobStore
	search    SearchIndexer
	telemetry TelemetryWriter
}

// New builds a Pipeline. blobs, search, and telemetry may be nil when the
// deployment doesn't carry those stores; the corresponding upload kinds
// then fail with a clear configuration error instead of a panic.
func New(hub *sse.Hub, backends *backend.Registry, resolver *scenario.Resolver, scenarios *scenario.Registry, st store.Store, blobs BlobStore, search SearchIndexer, telemetry TelemetryWriter) *Pipeline {
	return &Pipeline{
		hub:       hub,
		backends:  backends,
		resolver:  resolver,
		scenarios: scenarios,
		store:     st,
		blobs:     blobs,
		search:    search,
		telemetry: telemetry,
	}
}

// UploadSource builds the SSE source tag for one upload request. uploadID
// is caller-chosen (one per request), so concurrent uploads of the same
// kind never interleave on a shared tag.
func UploadSource(kind config.UploadKind, uploadID string) string {
	return fmt.Sprintf("upload:%s:%s", kind, uploadID)
}

// Run executes one upload, publishing progress/complete/error events on
// source. nameOverride, when non-empty, is the authoritative scenario name
// and takes priority over any name embedded in the archive's manifest —
// uniformly across all five kinds. The archive is a gzipped tarball.
//
// Run records the outcome on the scenario's upload-status map. It is
// designed to be called on its own goroutine while the HTTP handler
// streams the events; the handler subscribes to source before calling.
func (p *Pipeline) Run(ctx context.Context, kind config.UploadKind, nameOverride string, archive io.Reader, source string) error {
	scenarioName, counts, err := p.run(ctx, kind, nameOverride, archive, source)
	if err != nil {
		payload := map[string]any{"error": err.Error()}
		if len(counts) > 0 {
			payload["counts_so_far"] = counts
		}
		p.hub.Publish(source, sse.KindError, payload)
		p.recordUpload(ctx, scenarioName, kind, "failed", counts)
		return err
	}

	p.hub.Publish(source, sse.KindComplete, map[string]any{"counts": counts})
	p.recordUpload(ctx, scenarioName, kind, "complete", counts)
	return nil
}

func (p *Pipeline) run(ctx context.Context, kind config.UploadKind, nameOverride string, archive io.Reader, source string) (string, map[string]int, error) {
	dir, cleanup, err := extractArchive(archive)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	defer cleanup()

	switch kind {
	case config.UploadKindGraph:
		return p.ingestGraph(ctx, dir, nameOverride, source)
	case config.UploadKindTelemetry:
		return p.ingestTelemetry(ctx, dir, nameOverride, source)
	case config.UploadKindRunbooks, config.UploadKindTickets:
		return p.ingestDocuments(ctx, dir, nameOverride, kind, source)
	case config.UploadKindPrompts:
		return p.ingestPrompts(ctx, dir, nameOverride, source)
	default:
		return "", nil, fmt.Errorf("%w: unknown upload kind %q", ErrValidation, kind)
	}
}

// resolveName applies the override-priority rule: an explicit
// scenario_name parameter wins over the manifest's embedded name,
// identically for every upload kind.
func resolveName(override, manifestName string) (string, error) {
	name := override
	if name == "" {
		name = manifestName
	}
	if name == "" {
		return "", fmt.Errorf("%w: no scenario name: pass ?scenario_name= or declare name in the manifest", ErrValidation)
	}
	if err := scenario.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Pipeline) recordUpload(ctx context.Context, scenarioName string, kind config.UploadKind, status string, counts map[string]int) {
	if p.scenarios == nil || scenarioName == "" {
		return
	}
	err := p.scenarios.RecordUpload(ctx, scenarioName, kind, config.UploadStatus{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Counts:    counts,
	})
	if err != nil {
		// An upload may legitimately precede the scenario's first save.
		slog.Debug("Upload status not recorded", "scenario", scenarioName, "kind", kind, "error", err)
	}
}

func (p *Pipeline) progress(source, step, detail string, pct int) {
	p.hub.Publish(source, sse.KindProgress, map[string]any{
		"step": step, "detail": detail, "pct": pct,
	})
}
