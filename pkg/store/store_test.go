package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conformance runs the same behavioral contract against any Store
// implementation — both Memory and Postgres must satisfy it identically.
func conformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissingReturnsErrNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, ContainerScenarios, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpsertThenGetRoundTrips", func(t *testing.T) {
		doc := Document{ID: "net-outage", Body: map[string]any{"display_name": "Network Outage"}}
		require.NoError(t, s.Upsert(ctx, ContainerScenarios, doc))

		got, err := s.Get(ctx, ContainerScenarios, "net-outage")
		require.NoError(t, err)
		assert.Equal(t, "Network Outage", got.Body["display_name"])
	})

	t.Run("UpsertOverwritesInPlace", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, ContainerScenarios, Document{ID: "db-slow", Body: map[string]any{"v": 1}}))
		require.NoError(t, s.Upsert(ctx, ContainerScenarios, Document{ID: "db-slow", Body: map[string]any{"v": 2}}))

		got, err := s.Get(ctx, ContainerScenarios, "db-slow")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Body["v"])
	})

	t.Run("UpsertRejectsForbiddenIDChars", func(t *testing.T) {
		err := s.Upsert(ctx, ContainerPrompts, Document{ID: "scenario/agent", Body: map[string]any{}})
		assert.Error(t, err)
	})

	t.Run("QueryAppliesPredicate", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, ContainerPrompts, Document{ID: "a__orchestrator__v1", Body: map[string]any{"agent": "orchestrator"}}))
		require.NoError(t, s.Upsert(ctx, ContainerPrompts, Document{ID: "a__graph__v1", Body: map[string]any{"agent": "graph"}}))

		docs, err := s.Query(ctx, ContainerPrompts, func(d Document) bool {
			return d.Body["agent"] == "orchestrator"
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "a__orchestrator__v1", docs[0].ID)
	})

	t.Run("QueryNilPredicateReturnsAll", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, ContainerInteractions, Document{ID: "run-1", Body: map[string]any{}}))
		require.NoError(t, s.Upsert(ctx, ContainerInteractions, Document{ID: "run-2", Body: map[string]any{}}))

		docs, err := s.Query(ctx, ContainerInteractions, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(docs), 2)
	})

	t.Run("DeleteRemovesDocument", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, ContainerScenarios, Document{ID: "to-delete", Body: map[string]any{}}))
		require.NoError(t, s.Delete(ctx, ContainerScenarios, "to-delete"))

		_, err := s.Get(ctx, ContainerScenarios, "to-delete")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteMissingIsNotAnError", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, ContainerScenarios, "never-existed"))
	})
}

func TestMemory_Conformance(t *testing.T) {
	conformance(t, NewMemory())
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"net-outage", true},
		{"scenario__agent__v1", true},
		{"", false},
		{"has/slash", false},
		{`has\backslash`, false},
		{"has?question", false},
		{"has#hash", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidID(tt.id), "id %q", tt.id)
	}
}

func TestMemory_GetReturnsIndependentCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Upsert(ctx, ContainerScenarios, Document{ID: "s1", Body: map[string]any{"k": "v"}}))

	got, err := m.Get(ctx, ContainerScenarios, "s1")
	require.NoError(t, err)
	got.Body["k"] = "mutated"

	got2, err := m.Get(ctx, ContainerScenarios, "s1")
	require.NoError(t, err)
	assert.Equal(t, "v", got2.Body["k"], "mutating a returned document must not affect the store's copy")
}
