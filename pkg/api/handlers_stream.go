package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/ingest"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/sse"
)

type alertRequest struct {
	Alert    string `json:"alert" binding:"required"`
	Scenario string `json:"scenario,omitempty"`
}

// handleAlert submits an alert and streams the run's events until the
// terminal run_complete or error.
func (s *Server) handleAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scenarioName := req.Scenario
	if scenarioName == "" {
		sctx := s.resolver.Resolve(c.Request.Context(), c.GetHeader(graphHeader))
		scenarioName = sctx.ScenarioName
	}

	_, sub := s.bridge.SubmitAlert(c.Request.Context(), req.Alert, scenarioName)
	sse.Stream(c, sub, 0)
}

// handleLogs streams application log events, optionally filtered to a
// comma-separated list of source-tag prefixes (?sources=run:,upload:).
// Retained history for exact source matches is replayed before live
// events.
func (s *Server) handleLogs(c *gin.Context) {
	var prefixes []string
	if raw := c.Query("sources"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
	}
	var filter sse.Filter
	if len(prefixes) > 0 {
		filter = func(source string) bool {
			for _, p := range prefixes {
				if strings.HasPrefix(source, p) {
					return true
				}
			}
			return false
		}
	}

	sub := s.hub.Subscribe(filter)
	sse.WriteStreamHeaders(c)
	// Replayed history uses the same wire format as live events.
	for _, p := range prefixes {
		for _, ev := range s.hub.TailBuffer(p) {
			sse.WriteEvent(c, ev)
		}
	}
	c.Writer.Flush()
	sse.Stream(c, sub, 0)
}

type configApplyRequest struct {
	Scenario string `json:"scenario,omitempty"`
	Graph    string `json:"graph,omitempty"`
}

// handleConfigApply triggers scenario activation and streams provisioning
// progress. A concurrent activation yields 409; unrelated endpoints are
// never affected.
func (s *Server) handleConfigApply(c *gin.Context) {
	var req configApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := req.Scenario
	if name == "" && req.Graph != "" {
		// A graph name like "telco-noc-topology" names its scenario by
		// prefix, same derivation as the query-path resolver.
		if idx := strings.LastIndex(req.Graph, "-"); idx > 0 {
			name = req.Graph[:idx]
		} else {
			name = req.Graph
		}
	}
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario or graph is required"})
		return
	}

	source := "activation:" + name
	sub := s.hub.Subscribe(func(s string) bool { return s == source })

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.scenarios.ActivateScenario(context.WithoutCancel(c.Request.Context()), name)
	}()

	// Pre-stream rejections (unknown scenario, activation already in
	// progress) surface as status codes; once the provisioner publishes
	// its first event the response is committed as a stream and any later
	// failure arrives as an error event.
	select {
	case err := <-errCh:
		if errors.Is(err, scenario.ErrActivationBusy) || isNotFound(err) {
			sub.Close()
			abortWithServiceError(c, err)
			return
		}
		// Activation already finished; its buffered events (including the
		// terminal complete/error) drain through the stream below.
		sse.Stream(c, sub, 0)
	case ev := <-sub.Events():
		sse.WriteStreamHeaders(c)
		sse.WriteEvent(c, ev)
		c.Writer.Flush()
		if !ev.Kind.Terminal() {
			sse.Stream(c, sub, 0)
		} else {
			sub.Close()
		}
	}
}

// handleUpload accepts a gzipped tarball for one of the five data kinds
// and streams extraction/validation/ingest progress. The optional
// ?scenario_name= parameter is the authoritative scenario name, taking
// priority over any name the archive's manifest declares.
func (s *Server) handleUpload(c *gin.Context) {
	kind := config.UploadKind(c.Param("kind"))
	switch kind {
	case config.UploadKindGraph, config.UploadKindTelemetry, config.UploadKindRunbooks,
		config.UploadKindTickets, config.UploadKindPrompts:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown upload kind: " + string(kind)})
		return
	}
	override := c.Query("scenario_name")

	source := ingest.UploadSource(kind, uuid.NewString())
	sub := s.hub.Subscribe(func(s string) bool { return s == source })

	go func() {
		// The pipeline publishes its own terminal complete/error event.
		_ = s.pipeline.Run(context.WithoutCancel(c.Request.Context()), kind, override, c.Request.Body, source)
	}()

	sse.Stream(c, sub, 0)
}
