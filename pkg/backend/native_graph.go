package backend

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// NativeGraphConfig configures the native-graph connector: a graph
// traversal protocol spoken over a websocket/TLS connection authenticated
// with a static key (the wire protocol has no federated-auth mode).
type NativeGraphConfig struct {
	Endpoint  string // wss://... websocket endpoint
	AuthKey   string
	TLSConfig *tls.Config
}

// NativeGraph speaks a native graph traversal protocol over websocket/TLS.
// It retries rate-limit and handshake errors with bounded exponential
// backoff (≤3 attempts).
type NativeGraph struct {
	cfg NativeGraphConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NativeGraphFactory resolves cfgFor(graphName) and dials lazily on first
// use (no network I/O happens in the factory itself beyond config lookup,
// so a misconfigured scenario fails at query time with a clear error, not
// at registry-miss time).
func NativeGraphFactory(cfgFor func(graphName string) (NativeGraphConfig, error)) Factory {
	return func(_ context.Context, graphName string) (Backend, error) {
		cfg, err := cfgFor(graphName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
		}
		return &NativeGraph{cfg: cfg}, nil
	}
}

func (n *NativeGraph) dial(ctx context.Context) (*websocket.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return n.conn, nil
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+n.cfg.AuthKey)
	conn, _, err := websocket.Dial(ctx, n.cfg.Endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("%w: native graph handshake: %v", ErrUpstreamUnavailable, err)
	}
	n.conn = conn
	return conn, nil
}

// nativeGraphRequest/nativeGraphResponse are the wire shapes exchanged over
// the websocket traversal protocol.
type nativeGraphRequest struct {
	Op     string         `json:"op"`
	Query  string         `json:"query"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

type nativeGraphResponse struct {
	Columns   []string         `json:"columns"`
	Data      []map[string]any `json:"data"`
	RateLimit bool             `json:"rate_limited,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// retryPolicy builds the ≤3-attempt bounded exponential backoff this
// requires for the native-graph connector.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, 2) // 3 total attempts
}

func (n *NativeGraph) roundTrip(ctx context.Context, req nativeGraphRequest) (nativeGraphResponse, error) {
	var resp nativeGraphResponse
	op := func() error {
		conn, err := n.dial(ctx)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, req); err != nil {
			n.invalidate()
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			n.invalidate()
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		if resp.RateLimit {
			return fmt.Errorf("%w: native graph backend throttled", ErrRateLimit)
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx))
	return resp, err
}

func (n *NativeGraph) invalidate() {
	n.mu.Lock()
	if n.conn != nil {
		_ = n.conn.Close(websocket.StatusInternalError, "reconnecting")
		n.conn = nil
	}
	n.mu.Unlock()
}

func (n *NativeGraph) ExecuteQuery(ctx context.Context, query string, kwargs map[string]any) (QueryResult, error) {
	resp, err := n.roundTrip(ctx, nativeGraphRequest{Op: "query", Query: query, Kwargs: kwargs})
	if err != nil {
		return QueryResult{Error: err.Error()}, nil
	}
	if resp.Error != "" {
		return QueryResult{Error: fmt.Sprintf("%v: %s", ErrQuerySyntax, resp.Error)}, nil
	}
	return QueryResult{Columns: resp.Columns, Data: resp.Data}, nil
}

func (n *NativeGraph) GetTopology(ctx context.Context, query string, vertexLabels []string) (TopologyResult, error) {
	kwargs := map[string]any{}
	if len(vertexLabels) > 0 {
		kwargs["vertex_labels"] = vertexLabels
	}
	resp, err := n.roundTrip(ctx, nativeGraphRequest{Op: "topology", Query: query, Kwargs: kwargs})
	if err != nil {
		return TopologyResult{Error: err.Error()}, nil
	}
	if resp.Error != "" {
		return TopologyResult{Error: resp.Error}, nil
	}
	return decodeTopologyRows(resp.Data), nil
}

// decodeTopologyRows splits the flat row set the wire protocol returns into
// nodes/edges by a discriminator column ("_kind").
func decodeTopologyRows(rows []map[string]any) TopologyResult {
	var nodes, edges []map[string]any
	labelSet := map[string]bool{}
	for _, r := range rows {
		if r["_kind"] == "edge" {
			edges = append(edges, r)
			continue
		}
		nodes = append(nodes, r)
		if l, ok := r["label"].(string); ok {
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
	}
}

func (n *NativeGraph) Ingest(ctx context.Context, vertices []Vertex, edges []Edge, in IngestInput) (IngestCounts, error) {
	const batchSize = 500
	written := IngestCounts{}
	for i := 0; i < len(vertices); i += batchSize {
		end := min(i+batchSize, len(vertices))
		req := nativeGraphRequest{Op: "ingest_vertices", Kwargs: map[string]any{"batch": vertices[i:end]}}
		if _, err := n.roundTrip(ctx, req); err != nil {
			return written, err
		}
		written.Vertices += end - i
		if in.Progress != nil {
			in.Progress("ingesting_vertices", written.Vertices, len(vertices))
		}
	}
	for i := 0; i < len(edges); i += batchSize {
		end := min(i+batchSize, len(edges))
		req := nativeGraphRequest{Op: "ingest_edges", Kwargs: map[string]any{"batch": edges[i:end]}}
		if _, err := n.roundTrip(ctx, req); err != nil {
			return written, err
		}
		written.Edges += end - i
		if in.Progress != nil {
			in.Progress("ingesting_edges", written.Edges, len(edges))
		}
	}
	return written, nil
}

func (n *NativeGraph) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.conn == nil {
		n.closed = true
		return nil
	}
	n.closed = true
	return n.conn.Close(websocket.StatusNormalClosure, "shutdown")
}
