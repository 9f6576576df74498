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

// KQLConfig configures the KQL connector: a telemetry cluster queried with
// Kusto Query Language, authenticated via the shared credential provider.
type KQLConfig struct {
	ClusterURI string
	Database   string
	Tokens     *credential.Provider
}

// KQL speaks KQL against a telemetry cluster. Used only for telemetry, not
// graph: GetTopology and Ingest are not meaningful here and return
// ErrNotSupported.
type KQL struct {
	cfg    KQLConfig
	client *http.Client
}

func KQLFactory(cfgFor func(graphName string) (KQLConfig, error)) Factory {
	return func(_ context.Context, graphName string) (Backend, error) {
		cfg, err := cfgFor(graphName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
		}
		return &KQL{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}, nil
	}
}

type kqlRequest struct {
	DB    string `json:"db"`
	Query string `json:"csl"`
}

type kqlResponse struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Error   string           `json:"error,omitempty"`
}

func (k *KQL) ExecuteQuery(ctx context.Context, query string, _ map[string]any) (QueryResult, error) {
	tok, err := k.cfg.Tokens.GetToken(ctx)
	if err != nil {
		return QueryResult{Error: fmt.Sprintf("%v: %v", ErrAuth, err)}, nil
	}

	body, _ := json.Marshal(kqlRequest{DB: k.cfg.Database, Query: query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.ClusterURI+"/v2/rest/query", bytes.NewReader(body))
	if err != nil {
		return QueryResult{Error: err.Error()}, nil
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return QueryResult{Error: fmt.Sprintf("%v: %v", ErrUpstreamUnavailable, err)}, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return QueryResult{Error: fmt.Sprintf("%v: kql cluster throttled", ErrRateLimit)}, nil
	}
	if resp.StatusCode >= 400 {
		return QueryResult{Error: fmt.Sprintf("%v: kql status %d: %s", ErrQuerySyntax, resp.StatusCode, string(raw))}, nil
	}

	var out kqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return QueryResult{Error: "failed to decode kql response: " + err.Error()}, nil
	}
	if out.Error != "" {
		return QueryResult{Error: out.Error}, nil
	}
	return QueryResult{Columns: out.Columns, Data: out.Rows}, nil
}

func (k *KQL) GetTopology(context.Context, string, []string) (TopologyResult, error) {
	return TopologyResult{}, &ErrNotSupported{Backend: ConnectorKQL}
}

func (k *KQL) Ingest(context.Context, []Vertex, []Edge, IngestInput) (IngestCounts, error) {
	return IngestCounts{}, &ErrNotSupported{Backend: ConnectorKQL}
}

func (k *KQL) Close() error { return nil }
