package models

import (
	"fmt"
	"strings"
	"time"
)

// Prompt is a document keyed "{scenario}__{agent}__v{version}" persisted in
// the prompts container. Composition-time a prompt may be a single document
// or assembled from a set of fragments in a declared directory (pkg/provision).
type Prompt struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	Agent     string    `json:"agent"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptID builds the double-underscore-separated document id for a prompt.
func PromptID(scenario, agent string, version int) string {
	return fmt.Sprintf("%s__%s__v%d", scenario, agent, version)
}

// forbiddenIDChars are disallowed in any document id across the persistence
// abstraction (see pkg/store), not just prompts.
const forbiddenIDChars = "/\\?#"

// ValidDocumentID reports whether id contains none of "/", "\", "?", "#".
func ValidDocumentID(id string) bool {
	return !strings.ContainsAny(id, forbiddenIDChars)
}
