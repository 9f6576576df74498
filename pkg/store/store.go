// Package store implements the document-store persistence abstraction
//: one interface over scenarios, scenario configs, prompts, and
// interaction history, with a Postgres-backed implementation and an
// in-memory stub for tests.
package store

import (
	"context"
	"errors"
	"regexp"
)

// Document is the generic envelope every container stores: an opaque
// body keyed by id, timestamped on write.
type Document struct {
	ID   string
	Body map[string]any
}

// Predicate filters Query results; nil matches everything. Predicates run
// after the container-level key-value fetch, not pushed into SQL — the
// document bodies are small and containers are selective enough (one
// container per scenario-ish entity) that this stays cheap; see DESIGN.md.
type Predicate func(Document) bool

// Store is the minimal document-store contract.
type Store interface {
	Get(ctx context.Context, container, id string) (Document, error)
	Upsert(ctx context.Context, container string, doc Document) error
	Query(ctx context.Context, container string, pred Predicate) ([]Document, error)
	Delete(ctx context.Context, container, id string) error
}

// ErrNotFound is returned by Get when no document exists under the given
// container/id.
var ErrNotFound = errors.New("store: document not found")

// forbiddenIDChars matches the characters disallowed in document ids
// (they would be ambiguous if the id were ever used in a URL path or as a
// blob name): '/', '\', '?', '#'.
var forbiddenIDChars = regexp.MustCompile(`[/\\?#]`)

// ValidID reports whether id is an acceptable document id.
func ValidID(id string) bool {
	return id != "" && !forbiddenIDChars.MatchString(id)
}

// Containers used across the system — named here so callers don't
// hand-roll string literals that could drift.
const (
	ContainerScenarios       = "scenarios"
	ContainerScenarioConfigs = "scenario_configs"
	ContainerPrompts         = "prompts"
	ContainerInteractions    = "interaction_history"
)
