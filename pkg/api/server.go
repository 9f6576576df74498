// Package api exposes the HTTP surface: alert submission, query dispatch,
// scenario CRUD and activation, uploads, and the log stream. Handlers stay
// thin — resolution, dispatch, and orchestration live in their own
// packages; this one maps requests to them and service errors to statuses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netsentry/conductor/pkg/backend"
	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/ingest"
	"github.com/netsentry/conductor/pkg/orchestrate"
	"github.com/netsentry/conductor/pkg/provision"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
	"github.com/netsentry/conductor/pkg/version"
)

// Server bundles the HTTP surface's collaborators.
type Server struct {
	cfg         *config.Config
	hub         *sse.Hub
	backends    *backend.Registry
	resolver    *scenario.Resolver
	scenarios   *scenario.Registry
	provisioner *provision.Provisioner
	bridge      *orchestrate.Bridge
	pipeline    *ingest.Pipeline
	store       store.Store
	dbPing      func() error
}

// New builds a Server. dbPing may be nil when no database backs the store.
func New(cfg *config.Config, hub *sse.Hub, backends *backend.Registry, resolver *scenario.Resolver, scenarios *scenario.Registry, provisioner *provision.Provisioner, bridge *orchestrate.Bridge, pipeline *ingest.Pipeline, st store.Store, dbPing func() error) *Server {
	return &Server{
		cfg:         cfg,
		hub:         hub,
		backends:    backends,
		resolver:    resolver,
		scenarios:   scenarios,
		provisioner: provisioner,
		bridge:      bridge,
		pipeline:    pipeline,
		store:       st,
		dbPing:      dbPing,
	}
}

// Router assembles the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), bodyLimit(s.cfg.Server.BodyLimitByte))

	r.GET("/health", s.handleHealth)

	r.POST("/alert", s.handleAlert)
	r.GET("/agents", s.handleListAgents)
	r.GET("/logs", s.handleLogs)

	r.POST("/query/graph", s.handleQueryGraph)
	r.POST("/query/telemetry", s.handleQueryTelemetry)
	r.POST("/query/topology", s.handleQueryTopology)

	r.POST("/config/apply", s.handleConfigApply)

	r.GET("/scenarios/saved", s.handleListScenarios)
	r.POST("/scenarios/save", s.handleSaveScenario)
	r.DELETE("/scenarios/saved/:name", s.handleDeleteScenario)

	r.POST("/upload/:kind", s.handleUpload)

	r.GET("/prompts", s.handleListPrompts)

	return r
}

// requestLogger logs each request with structured fields once it finishes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// bodyLimit caps request bodies ahead of any handler reading them.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	dbStatus := "not_configured"
	if s.dbPing != nil {
		if err := s.dbPing(); err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		} else {
			dbStatus = "ok"
		}
	}
	stats := s.cfg.Stats()
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":          status,
		"version":         version.Full(),
		"database":        dbStatus,
		"backend_type":    stats.BackendType,
		"graph_database":  stats.GraphDatabase,
		"backends_cached": s.backends.Size(),
		"sse_subscribers": s.hub.SubscriberCount(),
	})
}
