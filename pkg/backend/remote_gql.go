package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/netsentry/conductor/pkg/credential"
)

// RemoteGQLConfig configures the remote-GQL connector: ISO GQL over a REST
// endpoint, bearer-token authenticated.
type RemoteGQLConfig struct {
	Endpoint string // REST base URL
	Tokens   *credential.Provider
}

// RemoteGQL speaks ISO GQL against a REST endpoint. 429 responses trigger
// retry (≤5 attempts, ~15s × attempt backoff) with token re-acquisition
// between attempts.
type RemoteGQL struct {
	cfg    RemoteGQLConfig
	client *http.Client
}

func RemoteGQLFactory(cfgFor func(graphName string) (RemoteGQLConfig, error)) Factory {
	return func(_ context.Context, graphName string) (Backend, error) {
		cfg, err := cfgFor(graphName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
		}
		return &RemoteGQL{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}, nil
	}
}

const remoteGQLMaxAttempts = 5

type gqlRequest struct {
	Query  string         `json:"query"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

type gqlResponse struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Error   string           `json:"error,omitempty"`
}

func (g *RemoteGQL) post(ctx context.Context, path string, body gqlRequest) (gqlResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= remoteGQLMaxAttempts; attempt++ {
		resp, err := g.doRequest(ctx, path, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == remoteGQLMaxAttempts {
			break
		}
		wait := time.Duration(attempt) * 15 * time.Second
		select {
		case <-ctx.Done():
			return gqlResponse{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return gqlResponse{}, lastErr
}

type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

func (g *RemoteGQL) doRequest(ctx context.Context, path string, body gqlRequest) (gqlResponse, error) {
	tok, err := g.cfg.Tokens.GetToken(ctx)
	if err != nil {
		return gqlResponse{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return gqlResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return gqlResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return gqlResponse{}, &retryableError{fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return gqlResponse{}, &retryableError{fmt.Errorf("%w: remote-gql rate limited", ErrRateLimit)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return gqlResponse{}, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	if resp.StatusCode >= 500 {
		return gqlResponse{}, &retryableError{fmt.Errorf("%w: remote-gql status %d", ErrUpstreamUnavailable, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return gqlResponse{}, fmt.Errorf("%w: remote-gql status %d: %s", ErrQuerySyntax, resp.StatusCode, string(raw))
	}

	var out gqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return gqlResponse{}, fmt.Errorf("failed to decode remote-gql response: %w", err)
	}
	return out, nil
}

func (g *RemoteGQL) ExecuteQuery(ctx context.Context, query string, kwargs map[string]any) (QueryResult, error) {
	resp, err := g.post(ctx, "/query", gqlRequest{Query: query, Kwargs: kwargs})
	if err != nil {
		return QueryResult{Error: err.Error()}, nil
	}
	if resp.Error != "" {
		return QueryResult{Error: resp.Error}, nil
	}
	return QueryResult{Columns: resp.Columns, Data: resp.Data}, nil
}

// GetTopology parses the remote service's row markers (_id, _label,
// _source, _target) into nodes and edges. The marker shapes follow the
// service documentation but have not been validated against a live
// endpoint; rows without edge markers are treated as nodes (see DESIGN.md
// Open Questions).
func (g *RemoteGQL) GetTopology(ctx context.Context, query string, vertexLabels []string) (TopologyResult, error) {
	kwargs := map[string]any{}
	if len(vertexLabels) > 0 {
		kwargs["vertex_labels"] = vertexLabels
	}
	resp, err := g.post(ctx, "/topology", gqlRequest{Query: query, Kwargs: kwargs})
	if err != nil {
		return TopologyResult{Error: err.Error()}, nil
	}
	if resp.Error != "" {
		return TopologyResult{Error: resp.Error}, nil
	}

	var nodes, edges []map[string]any
	labelSet := map[string]bool{}
	for _, row := range resp.Data {
		if _, hasEdgeMarkers := row["_source"]; hasEdgeMarkers {
			edges = append(edges, map[string]any{
				"id":     row["_id"],
				"label":  row["_label"],
				"source": row["_source"],
				"target": row["_target"],
			})
			continue
		}
		nodes = append(nodes, row)
		if l, ok := row["_label"].(string); ok {
			labelSet[l] = true
		}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	return TopologyResult{
		Nodes: nodes,
		Edges: edges,
		Meta:  TopologyMeta{Counts: map[string]int{"vertices": len(nodes), "edges": len(edges)}, Labels: labels},
	}, nil
}

// Ingest batches vertices then edges through the REST ingest endpoint,
// reusing the same retry/backoff policy as query calls.
func (g *RemoteGQL) Ingest(ctx context.Context, vertices []Vertex, edges []Edge, in IngestInput) (IngestCounts, error) {
	const batchSize = 500
	var written IngestCounts

	for i := 0; i < len(vertices); i += batchSize {
		end := min(i+batchSize, len(vertices))
		if _, err := g.post(ctx, "/ingest/vertices", gqlRequest{Kwargs: map[string]any{"batch": vertices[i:end]}}); err != nil {
			return written, err
		}
		written.Vertices += end - i
		if in.Progress != nil {
			in.Progress("ingesting_vertices", written.Vertices, len(vertices))
		}
	}
	for i := 0; i < len(edges); i += batchSize {
		end := min(i+batchSize, len(edges))
		if _, err := g.post(ctx, "/ingest/edges", gqlRequest{Kwargs: map[string]any{"batch": edges[i:end]}}); err != nil {
			return written, err
		}
		written.Edges += end - i
		if in.Progress != nil {
			in.Progress("ingesting_edges", written.Edges, len(edges))
		}
	}
	return written, nil
}

func (g *RemoteGQL) Close() error { return nil }
