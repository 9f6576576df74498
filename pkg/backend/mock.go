package backend

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// canned is one pattern → canned-result rule for the mock backend's
// natural-language query matcher.
type canned struct {
	match  *regexp.Regexp
	result QueryResult
}

// Mock is the static, in-memory backend required for offline tests and
// demo mode. Data is loaded from CSV files at construction time (or
// supplied directly via Ingest, e.g. in unit tests) and queries are
// matched against a small set of natural-language patterns.
type Mock struct {
	mu       sync.RWMutex
	vertices []Vertex
	edges    []Edge
	rules    []canned
}

// NewMock constructs an empty Mock backend. Use LoadCSVDir or Ingest to
// seed it, and AddRule to register canned query patterns.
func NewMock() *Mock {
	return &Mock{}
}

// MockFactory adapts NewMock to the registry's Factory signature — the mock
// connector ignores graphName and ctx; there is nothing to dial.
func MockFactory(csvDir string) Factory {
	return func(_ context.Context, _ string) (Backend, error) {
		m := NewMock()
		if csvDir != "" {
			if err := m.LoadCSVDir(csvDir); err != nil {
				return nil, fmt.Errorf("mock backend: %w", err)
			}
		}
		m.registerDefaultRules()
		return m, nil
	}
}

// LoadCSVDir loads vertices.csv and edges.csv (if present) from dir. Each
// CSV's header row names the property columns; "id" and "label" (vertices)
// or "id"/"label"/"from"/"to" (edges) are reserved column names.
func (m *Mock) LoadCSVDir(dir string) error {
	if err := m.loadVertexCSV(dir + "/vertices.csv"); err != nil {
		return err
	}
	return m.loadEdgeCSV(dir + "/edges.csv")
}

func (m *Mock) loadVertexCSV(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	rows, header, err := readCSV(f)
	if err != nil {
		return err
	}
	var vertices []Vertex
	for _, row := range rows {
		v := Vertex{Properties: map[string]any{}}
		for i, col := range header {
			switch col {
			case "id":
				v.ID = row[i]
			case "label":
				v.Label = row[i]
			default:
				v.Properties[col] = row[i]
			}
		}
		vertices = append(vertices, v)
	}
	m.mu.Lock()
	m.vertices = append(m.vertices, vertices...)
	m.mu.Unlock()
	return nil
}

func (m *Mock) loadEdgeCSV(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	rows, header, err := readCSV(f)
	if err != nil {
		return err
	}
	var edges []Edge
	for _, row := range rows {
		e := Edge{Properties: map[string]any{}}
		for i, col := range header {
			switch col {
			case "id":
				e.ID = row[i]
			case "label":
				e.Label = row[i]
			case "from":
				e.FromID = row[i]
			case "to":
				e.ToID = row[i]
			default:
				e.Properties[col] = row[i]
			}
		}
		edges = append(edges, e)
	}
	m.mu.Lock()
	m.edges = append(m.edges, edges...)
	m.mu.Unlock()
	return nil
}

func readCSV(f *os.File) (rows [][]string, header []string, err error) {
	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[1:], all[0], nil
}

// AddRule registers a canned query pattern. Patterns are tried in
// registration order; the first match wins.
func (m *Mock) AddRule(pattern string, result QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, canned{match: regexp.MustCompile(pattern), result: result})
}

func (m *Mock) registerDefaultRules() {
	m.AddRule(`(?i)down|outage|fail`, QueryResult{
		Columns: []string{"id", "label", "status"},
		Data:    []map[string]any{{"id": "mock-1", "label": "link", "status": "down"}},
	})
}

func (m *Mock) ExecuteQuery(_ context.Context, query string, _ map[string]any) (QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rule := range m.rules {
		if rule.match.MatchString(query) {
			return rule.result, nil
		}
	}
	return QueryResult{Error: fmt.Sprintf("%v: mock backend has no canned result for query %q", ErrQuerySyntax, query)}, nil
}

func (m *Mock) GetTopology(_ context.Context, query string, vertexLabels []string) (TopologyResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wantLabels := map[string]bool{}
	for _, l := range vertexLabels {
		wantLabels[l] = true
	}

	labelSet := map[string]bool{}
	var nodes []map[string]any
	for _, v := range m.vertices {
		if len(wantLabels) > 0 && !wantLabels[v.Label] {
			continue
		}
		labelSet[v.Label] = true
		nodes = append(nodes, vertexToMap(v))
	}
	keep := map[string]bool{}
	for _, n := range nodes {
		keep[n["id"].(string)] = true
	}
	var edges []map[string]any
	for _, e := range m.edges {
		if len(wantLabels) > 0 && !(keep[e.FromID] && keep[e.ToID]) {
			continue
		}
		edges = append(edges, edgeToMap(e))
	}

	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	if strings.TrimSpace(query) != "" {
		// query filtering beyond label selection is not supported by the
		// mock backend; it is accepted for interface parity and ignored.
		_ = query
	}
	return TopologyResult{
		Nodes: nodes,
		Edges: edges,
		Meta:  TopologyMeta{Counts: map[string]int{"vertices": len(nodes), "edges": len(edges)}, Labels: labels},
	}, nil
}

func vertexToMap(v Vertex) map[string]any {
	out := map[string]any{"id": v.ID, "label": v.Label}
	for k, val := range v.Properties {
		out[k] = val
	}
	return out
}

func edgeToMap(e Edge) map[string]any {
	out := map[string]any{"id": e.ID, "label": e.Label, "source": e.FromID, "target": e.ToID}
	for k, val := range e.Properties {
		out[k] = val
	}
	return out
}

// Ingest appends vertices and edges to the mock's in-memory dataset —
// useful for tests that want to seed a Mock directly rather than via CSV
// files. The data lives only in memory; it does not persist.
func (m *Mock) Ingest(_ context.Context, vertices []Vertex, edges []Edge, _ IngestInput) (IngestCounts, error) {
	m.mu.Lock()
	m.vertices = append(m.vertices, vertices...)
	m.edges = append(m.edges, edges...)
	m.mu.Unlock()
	return IngestCounts{Vertices: len(vertices), Edges: len(edges)}, nil
}

func (m *Mock) Close() error { return nil }
