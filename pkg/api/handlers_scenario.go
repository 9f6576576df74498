package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/netsentry/conductor/pkg/store"
)

type saveScenarioRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Scenario CRUD speaks to the UI, not an LLM, so it uses standard status
// codes: 4xx for validation, 404 for unknown names, 5xx for internal
// failures.
func (s *Server) handleListScenarios(c *gin.Context) {
	scenarios, err := s.scenarios.ListScenarios(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
}

func (s *Server) handleSaveScenario(c *gin.Context) {
	var req saveScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := s.scenarios.SaveScenario(c.Request.Context(), req.Name, req.DisplayName, req.Description)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleDeleteScenario(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.scenarios.GetScenario(c.Request.Context(), name); err != nil {
		abortWithServiceError(c, err)
		return
	}
	if err := s.scenarios.DeleteScenario(c.Request.Context(), name); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (s *Server) handleListAgents(c *gin.Context) {
	ids := s.provisioner.AgentIDs()
	agents := make([]gin.H, 0, len(ids))
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		agents = append(agents, gin.H{"name": name, "id": ids[name]})
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// handleListPrompts lists prompt documents. By default only metadata is
// returned; ?include_content=true inlines the markdown so a UI listing N
// prompts costs one round-trip instead of N+1.
func (s *Server) handleListPrompts(c *gin.Context) {
	docs, err := s.store.Query(c.Request.Context(), store.ContainerPrompts, nil)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	includeContent := c.Query("include_content") == "true"

	prompts := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		p := make(map[string]any, len(doc.Body))
		for k, v := range doc.Body {
			if k == "content" && !includeContent {
				continue
			}
			p[k] = v
		}
		prompts = append(prompts, p)
	}
	sort.Slice(prompts, func(i, j int) bool {
		a, _ := prompts[i]["id"].(string)
		b, _ := prompts[j]["id"].(string)
		return a < b
	})
	c.JSON(http.StatusOK, gin.H{"prompts": prompts})
}
