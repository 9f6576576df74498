package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_ExecuteQueryMatchesCannedRule(t *testing.T) {
	m := NewMock()
	m.registerDefaultRules()

	result, err := m.ExecuteQuery(context.Background(), "why is the link down?", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Error)
	assert.Equal(t, "down", result.Data[0]["status"])
}

func TestMock_ExecuteQueryNoRuleMatchReturnsErrorInBody(t *testing.T) {
	m := NewMock()
	m.registerDefaultRules()

	result, err := m.ExecuteQuery(context.Background(), "what time is it", nil)
	require.NoError(t, err, "query failures never surface as a Go error")
	assert.NotEmpty(t, result.Error)
}

func TestMock_AddRuleFirstMatchWins(t *testing.T) {
	m := NewMock()
	m.AddRule(`foo`, QueryResult{Data: []map[string]any{{"rule": "first"}}})
	m.AddRule(`foo|bar`, QueryResult{Data: []map[string]any{{"rule": "second"}}})

	result, err := m.ExecuteQuery(context.Background(), "foobar", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Data[0]["rule"])
}

func TestMock_LoadCSVDirAndGetTopology(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vertices.csv"), "id,label,region\nsvc-a,service,us-east\nsvc-b,service,us-west\ndb-1,database,us-east\n")
	writeFile(t, filepath.Join(dir, "edges.csv"), "id,label,from,to\ne1,depends_on,svc-a,db-1\n")

	m := NewMock()
	require.NoError(t, m.LoadCSVDir(dir))

	topo, err := m.GetTopology(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 3)
	assert.Len(t, topo.Edges, 1)
	assert.ElementsMatch(t, []string{"service", "database"}, topo.Meta.Labels)
}

func TestMock_GetTopologyFiltersByVertexLabel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vertices.csv"), "id,label\nsvc-a,service\ndb-1,database\n")
	writeFile(t, filepath.Join(dir, "edges.csv"), "id,label,from,to\ne1,depends_on,svc-a,db-1\n")

	m := NewMock()
	require.NoError(t, m.LoadCSVDir(dir))

	topo, err := m.GetTopology(context.Background(), "", []string{"service"})
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 1)
	assert.Empty(t, topo.Edges, "edge endpoints filtered out when one side isn't in the kept vertex set")
}

func TestMock_LoadCSVDirMissingFilesIsNotAnError(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.LoadCSVDir(t.TempDir()))
}

func TestMock_IngestAppendsAndQueriesReflectIt(t *testing.T) {
	m := NewMock()
	counts, err := m.Ingest(context.Background(), []Vertex{{ID: "v1", Label: "host"}}, nil, IngestInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Vertices)

	topo, err := m.GetTopology(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 1)
}

func TestMock_MockFactoryIgnoresGraphNameAndCtx(t *testing.T) {
	factory := MockFactory("")
	b, err := factory(context.Background(), "any-graph-name")
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
