package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/netsentry/conductor/pkg/credential"
)

// restClient is the shared HTTP plumbing behind the REST-backed store
// implementations: bearer-token auth against a service endpoint.
//
// Tokens are re-acquired per call, not captured once: an ingestion run can
// outlive a token's ~60 min lifetime, and the provider's internal cache
// makes the common case free.
type restClient struct {
	endpoint string
	tokens   *credential.Provider
	client   *http.Client
}

func newRESTClient(endpoint string, tokens *credential.Provider) restClient {
	return restClient{
		endpoint: endpoint,
		tokens:   tokens,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c restClient) do(ctx context.Context, method, path, contentType string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	tok, err := c.tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		// Conflict means the resource already exists, which every Ensure*
		// caller treats as success.
		return fmt.Errorf("%s %s returned HTTP %d", method, path, resp.StatusCode)
	}
	return nil
}

// RESTBlobStore writes runbook/ticket documents to a blob service.
// EnsureContainer is a control-plane call that can block while the service
// materializes the container; only ingest paths reach it.
type RESTBlobStore struct{ restClient }

func NewRESTBlobStore(endpoint string, tokens *credential.Provider) *RESTBlobStore {
	return &RESTBlobStore{newRESTClient(endpoint, tokens)}
}

func (s *RESTBlobStore) EnsureContainer(ctx context.Context, container string) error {
	return s.do(ctx, http.MethodPut, "/"+url.PathEscape(container)+"?restype=container", "", nil, nil)
}

func (s *RESTBlobStore) Upload(ctx context.Context, container, name string, data []byte) error {
	path := "/" + url.PathEscape(container) + "/" + url.PathEscape(name)
	return s.do(ctx, http.MethodPut, path, "application/octet-stream", data,
		map[string]string{"x-ms-blob-type": "BlockBlob"})
}

// RESTSearchIndexer creates or updates a search index pointed at a blob
// container.
type RESTSearchIndexer struct{ restClient }

func NewRESTSearchIndexer(endpoint string, tokens *credential.Provider) *RESTSearchIndexer {
	return &RESTSearchIndexer{newRESTClient(endpoint, tokens)}
}

func (s *RESTSearchIndexer) EnsureIndex(ctx context.Context, indexName, sourceContainer string) error {
	body, err := json.Marshal(map[string]any{
		"name":             indexName,
		"source_container": sourceContainer,
	})
	if err != nil {
		return err
	}
	return s.do(ctx, http.MethodPut, "/indexes/"+url.PathEscape(indexName)+"?overwrite=true",
		"application/json", body, nil)
}

// RESTTelemetryWriter writes telemetry rows through the telemetry
// service's REST surface. EnsureDatabase and EnsureContainer are
// control-plane calls behind elevated privileges.
type RESTTelemetryWriter struct{ restClient }

func NewRESTTelemetryWriter(endpoint string, tokens *credential.Provider) *RESTTelemetryWriter {
	return &RESTTelemetryWriter{newRESTClient(endpoint, tokens)}
}

func (s *RESTTelemetryWriter) EnsureDatabase(ctx context.Context, database string) error {
	return s.do(ctx, http.MethodPut, "/databases/"+url.PathEscape(database), "", nil, nil)
}

func (s *RESTTelemetryWriter) EnsureContainer(ctx context.Context, database, container, partitionKey string) error {
	body, err := json.Marshal(map[string]any{"partition_key": partitionKey})
	if err != nil {
		return err
	}
	path := "/databases/" + url.PathEscape(database) + "/containers/" + url.PathEscape(container)
	return s.do(ctx, http.MethodPut, path, "application/json", body, nil)
}

func (s *RESTTelemetryWriter) UpsertRows(ctx context.Context, database, container string, rows []map[string]any) error {
	body, err := json.Marshal(map[string]any{"rows": rows})
	if err != nil {
		return err
	}
	path := "/databases/" + url.PathEscape(database) + "/containers/" + url.PathEscape(container) + "/rows"
	return s.do(ctx, http.MethodPost, path, "application/json", body, nil)
}
