package api

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/conductor/pkg/backend"
	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/ingest"
	"github.com/netsentry/conductor/pkg/orchestrate"
	"github.com/netsentry/conductor/pkg/provision"
	"github.com/netsentry/conductor/pkg/runtime"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	server   *httptest.Server
	backends *backend.Registry
	store    *store.Memory
	factory  *countingFactory
}

type countingFactory struct {
	calls atomic.Int32
}

func (f *countingFactory) factory(_ context.Context, _ string) (backend.Backend, error) {
	f.calls.Add(1)
	m := backend.NewMock()
	m.AddRule(`(?i)down|outage|fail`, backend.QueryResult{
		Columns: []string{"id", "status"},
		Data:    []map[string]any{{"id": "link-1", "status": "down"}},
	})
	return m, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := store.NewMemory()
	hub := sse.NewHub(0, 0)
	reg := backend.NewRegistry()
	cf := &countingFactory{}
	reg.Register(backend.ConnectorMock, cf.factory)

	resolver := scenario.NewResolver(mem, scenario.Defaults{
		BackendType:       backend.ConnectorMock,
		GraphDatabase:     "demo",
		TelemetryDatabase: "demo-telemetry",
		PromptsDatabase:   "demo",
	}, 0)
	scenarios := scenario.NewRegistry(mem, nil, hub)
	prov := provision.New(mem, runtime.NewStub(), "http://conductor.local")
	stub := runtime.NewStub()
	stub.StepDelay = time.Millisecond
	bridge := orchestrate.New(hub, stub, prov, "orchestrator", mem)
	pipeline := ingest.New(hub, reg, resolver, scenarios, mem,
		ingest.NewMemoryBlobStore(), ingest.NewMemorySearchIndexer(), ingest.NewMemoryTelemetryWriter())

	cfg := &config.Config{
		Defaults: config.DefaultDefaults(),
		Server:   config.DefaultServerConfig(),
		Resolver: config.DefaultResolverConfig(),
	}
	srv := New(cfg, hub, reg, resolver, scenarios, prov, bridge, pipeline, mem, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &env{server: ts, backends: reg, store: mem, factory: cf}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// readSSEEvents reads event names off an SSE response until a terminal
// event or EOF.
func readSSEEvents(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()
	var names []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event:") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		names = append(names, name)
		if sse.Kind(name).Terminal() {
			break
		}
	}
	return names
}

func TestQueryGraph_Returns200WithErrorBodyOnBackendFailure(t *testing.T) {
	e := newEnv(t)

	// The mock has no canned answer for this query; the failure must land
	// in the body with a 200, never as a 4xx/5xx.
	resp := postJSON(t, e.server.URL+"/query/graph", map[string]any{"query": "anything"},
		map[string]string{"X-Graph": "ghost-topology"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["error"])
}

func TestQueryGraph_CannedMockAnswer(t *testing.T) {
	e := newEnv(t)
	resp := postJSON(t, e.server.URL+"/query/graph", map[string]any{"query": "which links are down?"},
		map[string]string{"X-Graph": "demo-topology"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Nil(t, body["error"])
	assert.NotEmpty(t, body["data"])
}

func TestQueryGraph_ConcurrentRequestsShareOneBackendInstance(t *testing.T) {
	e := newEnv(t)
	var wg sync.WaitGroup
	statuses := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := postJSON(t, e.server.URL+"/query/graph", map[string]any{"query": "outage"},
				map[string]string{"X-Graph": "shared-topology"})
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()
	for _, st := range statuses {
		assert.Equal(t, http.StatusOK, st)
	}
	assert.Equal(t, int32(1), e.factory.calls.Load())
}

func TestScenarioCRUD_RoundTrip(t *testing.T) {
	e := newEnv(t)

	resp := postJSON(t, e.server.URL+"/scenarios/save",
		map[string]any{"name": "telco-noc", "display_name": "Telco NOC"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decodeBody(t, resp)
	resources := saved["resources"].(map[string]any)
	assert.Equal(t, "telco-noc-topology", resources["graph"])

	resp, err := http.Get(e.server.URL + "/scenarios/saved")
	require.NoError(t, err)
	list := decodeBody(t, resp)
	assert.Len(t, list["scenarios"], 1)

	req, _ := http.NewRequest(http.MethodDelete, e.server.URL+"/scenarios/saved/telco-noc", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(e.server.URL + "/scenarios/saved")
	require.NoError(t, err)
	list = decodeBody(t, resp)
	assert.Empty(t, list["scenarios"])
}

func TestScenarioSave_InvalidNameIs400(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"a", "a--b", "foo-topology", "UPPER"} {
		resp := postJSON(t, e.server.URL+"/scenarios/save", map[string]any{"name": name}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		resp.Body.Close()
	}
}

func TestScenarioDelete_UnknownNameIs404(t *testing.T) {
	e := newEnv(t)
	req, _ := http.NewRequest(http.MethodDelete, e.server.URL+"/scenarios/saved/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAlert_StreamsRunEventsToTerminal(t *testing.T) {
	e := newEnv(t)
	resp := postJSON(t, e.server.URL+"/alert",
		map[string]any{"alert": "CRITICAL: LINK-SYD-MEL-FIBRE-01 down at 14:31:14"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSEEvents(t, resp)
	require.NotEmpty(t, events)
	assert.Equal(t, "run_start", events[0])
	assert.Contains(t, events, "step_start")
	assert.Contains(t, events, "step_complete")
	assert.Contains(t, events, "message")
	assert.Equal(t, "run_complete", events[len(events)-1])
}

func uploadArchive(t *testing.T, url string, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUpload_ScenarioNameOverrideBeatsManifest(t *testing.T) {
	e := newEnv(t)
	files := map[string]string{
		"manifest.yaml": "name: cloud-outage\nvertices:\n  - label: Service\n    file: v.csv\n    columns: [id]\nedges: []\n",
		"v.csv":         "id\nsvc-1\nsvc-2\n",
	}
	resp := uploadArchive(t, e.server.URL+"/upload/graph?scenario_name=my-custom", files)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readSSEEvents(t, resp)
	assert.Equal(t, "complete", events[len(events)-1])

	topo := postJSON(t, e.server.URL+"/query/topology", map[string]any{},
		map[string]string{"X-Graph": "my-custom-topology"})
	body := decodeBody(t, topo)
	assert.Len(t, body["nodes"], 2)

	// The manifest-declared name got no resources.
	topo = postJSON(t, e.server.URL+"/query/topology", map[string]any{},
		map[string]string{"X-Graph": "cloud-outage-topology"})
	body = decodeBody(t, topo)
	assert.Empty(t, body["nodes"])
}

func TestUpload_UnknownKindIs400(t *testing.T) {
	e := newEnv(t)
	resp := uploadArchive(t, e.server.URL+"/upload/nonsense", map[string]string{"x": "y"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteScenario_PreservesUploadedData(t *testing.T) {
	e := newEnv(t)
	resp := postJSON(t, e.server.URL+"/scenarios/save", map[string]any{"name": "keep-data"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	files := map[string]string{
		"manifest.yaml": "vertices:\n  - label: Router\n    file: v.csv\n    columns: [id]\nedges: []\n",
		"v.csv":         "id\nr-1\n",
	}
	resp = uploadArchive(t, e.server.URL+"/upload/graph?scenario_name=keep-data", files)
	readSSEEvents(t, resp)

	req, _ := http.NewRequest(http.MethodDelete, e.server.URL+"/scenarios/saved/keep-data", nil)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, dresp.StatusCode)
	dresp.Body.Close()

	topo := postJSON(t, e.server.URL+"/query/topology", map[string]any{},
		map[string]string{"X-Graph": "keep-data-topology"})
	body := decodeBody(t, topo)
	assert.Len(t, body["nodes"], 1)
}

func TestConfigApply_UnknownScenarioIs404(t *testing.T) {
	e := newEnv(t)
	resp := postJSON(t, e.server.URL+"/config/apply", map[string]any{"scenario": "ghost"}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigApply_StreamsActivationToComplete(t *testing.T) {
	e := newEnv(t)
	resp := postJSON(t, e.server.URL+"/scenarios/save", map[string]any{"name": "telco-noc"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, e.server.URL+"/config/apply", map[string]any{"graph": "telco-noc-topology"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readSSEEvents(t, resp)
	assert.Equal(t, "complete", events[len(events)-1])
}

func TestPrompts_IncludeContentAvoidsSecondFetch(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Upsert(context.Background(), store.ContainerPrompts, store.Document{
		ID: "telco-noc__orchestrator__v1",
		Body: map[string]any{
			"id": "telco-noc__orchestrator__v1", "agent": "orchestrator", "content": "You are the orchestrator.",
		},
	}))

	resp, err := http.Get(e.server.URL + "/prompts")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	prompts := body["prompts"].([]any)
	require.Len(t, prompts, 1)
	_, hasContent := prompts[0].(map[string]any)["content"]
	assert.False(t, hasContent)

	resp, err = http.Get(e.server.URL + "/prompts?include_content=true")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	prompts = body["prompts"].([]any)
	assert.Equal(t, "You are the orchestrator.", prompts[0].(map[string]any)["content"])
}

func TestHealth_ReportsRegistryAndConfigStats(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "not_configured", body["database"])
}
