package ingest

import (
	"context"
	"fmt"

	"github.com/netsentry/conductor/pkg/backend"
)

// GraphEnsurer is the optional control-plane side of a graph backend:
// creating the graph resource itself requires elevated privileges and can
// block for tens of seconds, so it lives behind a separate method that
// only the ingest path calls — read paths go straight to the data plane
// and fail fast when the resource is absent.
type GraphEnsurer interface {
	EnsureGraph(ctx context.Context, graphName, database string) error
}

// GraphDropper is the optional drop-all-data operation some graph backends
// support ahead of a full re-ingest.
type GraphDropper interface {
	DropAll(ctx context.Context) error
}

func (p *Pipeline) ingestGraph(ctx context.Context, dir, nameOverride, source string) (string, map[string]int, error) {
	var m graphManifest
	if err := loadManifest(dir, &m); err != nil {
		return "", nil, err
	}
	name, err := resolveName(nameOverride, m.Name)
	if err != nil {
		return "", nil, err
	}
	p.progress(source, "validating_schema", manifestFileName, 5)

	// The graph resource name MUST be derived with the same hardcoded
	// "-topology" suffix the scenario-context resolver uses at read time.
	// The manifest gets no say here: if ingest honored a manifest-declared
	// suffix, the data would be written under a name no query can ever
	// resolve back to.
	graphName := name + "-topology"

	vertices, vCount, err := parseGraphFiles(dir, m.Vertices, parseVertexRows)
	if err != nil {
		return name, nil, err
	}
	edges, eCount, err := parseGraphFiles(dir, m.Edges, parseEdgeRows)
	if err != nil {
		return name, nil, err
	}
	p.progress(source, "validated_files", fmt.Sprintf("%d vertices, %d edges declared", vCount, eCount), 10)

	sctx := p.resolver.Resolve(ctx, graphName)
	be, err := p.backends.Dispatch(ctx, sctx.BackendType, graphName)
	if err != nil {
		return name, nil, fmt.Errorf("resolve backend for %s: %w", graphName, err)
	}

	if ensurer, ok := be.(GraphEnsurer); ok {
		p.progress(source, "creating_graph", graphName, 15)
		if err := ensurer.EnsureGraph(ctx, graphName, sctx.GraphDatabase); err != nil {
			return name, nil, fmt.Errorf("create graph resource %s: %w", graphName, err)
		}
	}
	if m.DropExisting {
		if dropper, ok := be.(GraphDropper); ok {
			p.progress(source, "dropping_existing", graphName, 18)
			if err := dropper.DropAll(ctx); err != nil {
				return name, nil, fmt.Errorf("drop existing data in %s: %w", graphName, err)
			}
		}
	}

	total := vCount + eCount
	counts := map[string]int{"vertices": 0, "edges": 0}
	written, err := be.Ingest(ctx, vertices, edges, backend.IngestInput{
		GraphName:     graphName,
		GraphDatabase: sctx.GraphDatabase,
		Progress: func(step string, done, declared int) {
			pct := 20
			if total > 0 {
				base := done
				if step == "ingesting_edges" {
					base += vCount
				}
				pct = 20 + (78*base)/total
			}
			p.progress(source, step, fmt.Sprintf("%d/%d", done, declared), pct)
		},
	})
	counts["vertices"] = written.Vertices
	counts["edges"] = written.Edges
	if err != nil {
		// Partial data-plane failure: report what landed and stop. The
		// resource keeps the partial state; re-running the upload recovers
		// via upsert semantics.
		return name, counts, fmt.Errorf("ingest into %s: %w", graphName, err)
	}
	return name, counts, nil
}

func parseGraphFiles[T any](dir string, decls []graphFileDecl, parse func(decl graphFileDecl, header []string, rows [][]string) []T) ([]T, int, error) {
	var out []T
	for _, decl := range decls {
		header, rows, err := validateDecl(dir, decl)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, parse(decl, header, rows)...)
	}
	return out, len(out), nil
}

// parseVertexRows maps CSV rows to vertices: "id" and "label" are reserved
// columns, everything else lands in the property bag. A file-level label
// declaration backs rows that omit their own.
func parseVertexRows(decl graphFileDecl, header []string, rows [][]string) []backend.Vertex {
	out := make([]backend.Vertex, 0, len(rows))
	for _, row := range rows {
		v := backend.Vertex{Label: decl.Label, Properties: map[string]any{}}
		for i, col := range header {
			if i >= len(row) {
				break
			}
			switch col {
			case "id":
				v.ID = row[i]
			case "label":
				if row[i] != "" {
					v.Label = row[i]
				}
			default:
				v.Properties[col] = row[i]
			}
		}
		out = append(out, v)
	}
	return out
}

// parseEdgeRows maps CSV rows to edges; "from" and "to" are additionally
// reserved.
func parseEdgeRows(decl graphFileDecl, header []string, rows [][]string) []backend.Edge {
	out := make([]backend.Edge, 0, len(rows))
	for _, row := range rows {
		e := backend.Edge{Label: decl.Label, Properties: map[string]any{}}
		for i, col := range header {
			if i >= len(row) {
				break
			}
			switch col {
			case "id":
				e.ID = row[i]
			case "label":
				if row[i] != "" {
					e.Label = row[i]
				}
			case "from":
				e.FromID = row[i]
			case "to":
				e.ToID = row[i]
			default:
				e.Properties[col] = row[i]
			}
		}
		out = append(out, e)
	}
	return out
}
