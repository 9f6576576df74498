package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netsentry/conductor/pkg/backend"
)

// graphHeader is the routing header carrying the graph identifier; its
// absence falls back to the process-default graph.
const graphHeader = "X-Graph"

type queryRequest struct {
	Query  string         `json:"query"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// dispatchBackend resolves the scenario context from the routing header
// and returns the cached (or freshly instantiated) backend for it.
func (s *Server) dispatchBackend(c *gin.Context) (backend.Backend, error) {
	sctx := s.resolver.Resolve(c.Request.Context(), c.GetHeader(graphHeader))
	return s.backends.Dispatch(c.Request.Context(), sctx.BackendType, sctx.GraphName)
}

// Query endpoints always answer 200 with any failure carried in the body's
// error field. Their caller is an LLM agent whose HTTP tool treats non-200
// as fatal: a 4xx/5xx would hide the message the agent needs to fix its
// query and retry.
func (s *Server) handleQueryGraph(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: "invalid request body: " + err.Error()})
		return
	}
	be, err := s.dispatchBackend(c)
	if err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: err.Error()})
		return
	}
	result, err := be.ExecuteQuery(c.Request.Context(), req.Query, req.Kwargs)
	if err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleQueryTelemetry(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: "invalid request body: " + err.Error()})
		return
	}
	sctx := s.resolver.Resolve(c.Request.Context(), c.GetHeader(graphHeader))
	be, err := s.backends.Dispatch(c.Request.Context(), sctx.TelemetryBackendType, sctx.GraphName)
	if err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: err.Error()})
		return
	}
	result, err := be.ExecuteQuery(c.Request.Context(), req.Query, req.Kwargs)
	if err != nil {
		c.JSON(http.StatusOK, backend.QueryResult{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type topologyRequest struct {
	Query        string   `json:"query,omitempty"`
	VertexLabels []string `json:"vertex_labels,omitempty"`
}

func (s *Server) handleQueryTopology(c *gin.Context) {
	var req topologyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, backend.TopologyResult{Error: "invalid request body: " + err.Error()})
			return
		}
	}
	be, err := s.dispatchBackend(c)
	if err != nil {
		c.JSON(http.StatusOK, backend.TopologyResult{Error: err.Error()})
		return
	}
	result, err := be.GetTopology(c.Request.Context(), req.Query, req.VertexLabels)
	if err != nil {
		c.JSON(http.StatusOK, backend.TopologyResult{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
