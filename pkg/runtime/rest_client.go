package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/netsentry/conductor/pkg/credential"
	"github.com/netsentry/conductor/pkg/version"
)

// RESTClient is a thin HTTP+JSON client against the external hosted-agent
// runtime's REST surface, authenticated with bearer tokens from the shared
// credential provider.
type RESTClient struct {
	BaseURL  string
	Tokens   *credential.Provider
	client   *http.Client
	agentMap map[string]string
}

// NewRESTClient builds a RESTClient. baseURL and tokens empty/nil means
// Configured() reports false and the bridge falls back to Stub.
func NewRESTClient(baseURL string, tokens *credential.Provider) *RESTClient {
	return &RESTClient{
		BaseURL:  baseURL,
		Tokens:   tokens,
		client:   &http.Client{Timeout: 60 * time.Second},
		agentMap: make(map[string]string),
	}
}

func (c *RESTClient) Configured() bool {
	return c.BaseURL != "" && c.Tokens != nil
}

func (c *RESTClient) authedRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	tok, err := c.Tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	return resp, nil
}

type createAgentResponse struct {
	ID string `json:"id"`
}

func (c *RESTClient) CreateOrUpdateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	resp, err := c.authedRequest(ctx, http.MethodPut, "/agents/"+spec.Name, restAgentPayload(spec))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("runtime returned HTTP %d creating agent %s", resp.StatusCode, spec.Name)
	}
	var out createAgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	c.agentMap[spec.Name] = out.ID
	return out.ID, nil
}

func restAgentPayload(spec AgentSpec) map[string]any {
	tools := make([]map[string]any, 0, len(spec.Tools))
	for _, t := range spec.Tools {
		switch t.Kind {
		case ToolKindOpenAPI:
			tools = append(tools, map[string]any{"type": string(t.Kind), "spec": t.OpenAPISpec})
		case ToolKindAzureAISearch:
			tools = append(tools, map[string]any{"type": string(t.Kind), "index": t.SearchIndex})
		case ToolKindConnectedAgent:
			tools = append(tools, map[string]any{"type": string(t.Kind), "agent": t.ConnectedAgentName})
		}
	}
	return map[string]any{
		"name":         spec.Name,
		"instructions": spec.Instructions,
		"tools":        tools,
	}
}

type createThreadResponse struct {
	ID string `json:"id"`
}

func (c *RESTClient) CreateThread(ctx context.Context) (string, error) {
	resp, err := c.authedRequest(ctx, http.MethodPost, "/threads", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("runtime returned HTTP %d creating thread", resp.StatusCode)
	}
	var out createThreadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode thread response: %w", err)
	}
	return out.ID, nil
}

func (c *RESTClient) PostMessage(ctx context.Context, threadID, text string) error {
	resp, err := c.authedRequest(ctx, http.MethodPost, "/threads/"+threadID+"/messages", map[string]any{"text": text})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("runtime returned HTTP %d posting message", resp.StatusCode)
	}
	return nil
}

// runEvent is one line of the runtime's run-event stream:
// newline-delimited JSON, one event object per line.
type runEvent struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	StepIndex int    `json:"step_index,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Query     string `json:"query,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	Text      string `json:"text,omitempty"`
}

// CreateRun drives a run on threadID against orchestratorAgentID, decoding
// the runtime's newline-delimited event stream and dispatching each to cb.
// This blocks until the stream ends (terminal run status) or ctx is
// cancelled — callers needing async behavior run this on a dedicated
// goroutine (see pkg/orchestrate.Bridge).
func (c *RESTClient) CreateRun(ctx context.Context, threadID, orchestratorAgentID string, cb Callback) error {
	resp, err := c.authedRequest(ctx, http.MethodPost, "/threads/"+threadID+"/runs", map[string]any{"agent_id": orchestratorAgentID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime returned HTTP %d creating run", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var ev runEvent
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode run event: %w", err)
		}
		switch ev.Type {
		case "thread_run_update":
			cb.OnThreadRunUpdate(ev.Status)
		case "run_step_start":
			cb.OnRunStepStart(ev.StepIndex, ev.AgentName)
		case "run_step_complete":
			var stepErr error
			if ev.Error != "" {
				stepErr = fmt.Errorf("%s", ev.Error)
			}
			cb.OnRunStepComplete(ev.StepIndex, ev.AgentName, ev.Query, ev.Response, stepErr)
		case "message_done":
			cb.OnMessageDone(ev.Text)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
