// Conductor server - incident-investigation orchestration over pluggable
// graph/telemetry backends, streamed to the UI as server-sent events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/netsentry/conductor/pkg/api"
	"github.com/netsentry/conductor/pkg/backend"
	"github.com/netsentry/conductor/pkg/config"
	"github.com/netsentry/conductor/pkg/credential"
	"github.com/netsentry/conductor/pkg/database"
	"github.com/netsentry/conductor/pkg/ingest"
	"github.com/netsentry/conductor/pkg/orchestrate"
	"github.com/netsentry/conductor/pkg/provision"
	"github.com/netsentry/conductor/pkg/runtime"
	"github.com/netsentry/conductor/pkg/scenario"
	"github.com/netsentry/conductor/pkg/sse"
	"github.com/netsentry/conductor/pkg/store"
	"github.com/netsentry/conductor/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "path", envPath)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))
	slog.Info("Starting Conductor", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	hub := sse.NewHub(cfg.Defaults.SSETailSize, cfg.Defaults.SSEQueueSize)

	// Persistence: Postgres when DB_HOST is set, in-memory otherwise so a
	// laptop demo needs no database.
	var docStore store.Store
	var dbPing func() error
	if os.Getenv("DB_HOST") != "" {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err := database.NewClient(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Warn("Error closing database client", "error", err)
			}
		}()
		docStore = store.NewPostgres(dbClient.DB())
		dbPing = dbClient.DB().Ping
		slog.Info("Connected to PostgreSQL document store")

		// Fan published SSE events out to other replicas over
		// LISTEN/NOTIFY; a single replica works identically without it.
		broadcaster := sse.NewBroadcaster(hub, dbClient.DB(), dbCfg.DSN())
		if err := broadcaster.Start(ctx); err != nil {
			slog.Warn("SSE broadcaster failed to start", "error", err)
		} else {
			defer broadcaster.Stop()
		}
	} else {
		docStore = store.NewMemory()
		slog.Info("DB_HOST not set, using in-memory document store")
	}

	tokens := credential.New(cfg.Credential.TokenScope)

	backends := backend.NewRegistry()
	registerBackends(backends, cfg, tokens)

	resolver := scenario.NewResolver(docStore, scenario.Defaults{
		BackendType:       cfg.Defaults.BackendType,
		GraphDatabase:     cfg.Defaults.GraphDatabase,
		TelemetryDatabase: cfg.Defaults.TelemetryDatabase,
		PromptsDatabase:   cfg.Defaults.PromptsDatabase,
	}, cfg.Resolver.CacheTTL)

	var agentRuntime runtime.Runtime
	if cfg.Runtime.Endpoint != "" {
		agentRuntime = runtime.NewRESTClient(cfg.Runtime.Endpoint, tokens)
		slog.Info("Agent runtime configured", "endpoint", cfg.Runtime.Endpoint)
	} else {
		agentRuntime = runtime.NewStub()
		slog.Warn("No agent runtime endpoint configured, alert runs use the local stub walkthrough")
	}

	baseURL := getEnv("CONDUCTOR_BASE_URL", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port))
	provisioner := provision.New(docStore, agentRuntime, baseURL)
	scenarios := scenario.NewRegistry(docStore, provisioner, hub)
	bridge := orchestrate.New(hub, agentRuntime, provisioner, cfg.Runtime.Orchestrator, docStore)

	blobs, search, telemetry := ingestStores(cfg, tokens)
	pipeline := ingest.New(hub, backends, resolver, scenarios, docStore, blobs, search, telemetry)

	server := api.New(cfg, hub, backends, resolver, scenarios, provisioner, bridge, pipeline, docStore, dbPing)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		slog.Info("Conductor listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}
	backends.CloseAll(shutdownCtx)
	slog.Info("Shutdown complete")
}

// registerBackends binds every connector's factory. A connector with
// missing configuration is still registered: its factory fails with a
// config_missing error at dispatch time, so one unconfigured backend never
// takes the others down.
func registerBackends(reg *backend.Registry, cfg *config.Config, tokens *credential.Provider) {
	b := cfg.Backends

	reg.Register(backend.ConnectorMock, backend.MockFactory(cfg.Mock.CSVDir))

	reg.Register(backend.ConnectorNativeGraph, backend.NativeGraphFactory(func(string) (backend.NativeGraphConfig, error) {
		if b.NativeGraph == nil || b.NativeGraph.Endpoint == "" || b.NativeGraph.AuthKey == "" {
			return backend.NativeGraphConfig{}, errors.New("backends.native_graph is not configured")
		}
		return backend.NativeGraphConfig{Endpoint: b.NativeGraph.Endpoint, AuthKey: b.NativeGraph.AuthKey}, nil
	}))

	reg.Register(backend.ConnectorRemoteGQL, backend.RemoteGQLFactory(func(string) (backend.RemoteGQLConfig, error) {
		if b.RemoteGQL == nil || b.RemoteGQL.Endpoint == "" {
			return backend.RemoteGQLConfig{}, errors.New("backends.remote_gql is not configured")
		}
		return backend.RemoteGQLConfig{Endpoint: b.RemoteGQL.Endpoint, Tokens: tokens}, nil
	}))

	reg.Register(backend.ConnectorKQL, backend.KQLFactory(func(string) (backend.KQLConfig, error) {
		if b.KQL == nil || b.KQL.ClusterURI == "" || b.KQL.Database == "" {
			return backend.KQLConfig{}, errors.New("backends.kql is not configured")
		}
		return backend.KQLConfig{ClusterURI: b.KQL.ClusterURI, Database: b.KQL.Database, Tokens: tokens}, nil
	}))

	reg.Register(backend.ConnectorSQL, backend.SQLFactory(func(string) (backend.SQLConfig, error) {
		if b.SQL == nil || b.SQL.DSN == "" {
			return backend.SQLConfig{}, errors.New("backends.sql is not configured")
		}
		return backend.SQLConfig{DSN: b.SQL.DSN}, nil
	}))
}

// ingestStores wires the external ingestion stores from configuration,
// falling back to in-memory stand-ins so the upload kinds stay
// demonstrable without cloud resources.
func ingestStores(cfg *config.Config, tokens *credential.Provider) (ingest.BlobStore, ingest.SearchIndexer, ingest.TelemetryWriter) {
	var blobs ingest.BlobStore = ingest.NewMemoryBlobStore()
	var search ingest.SearchIndexer = ingest.NewMemorySearchIndexer()
	var telemetry ingest.TelemetryWriter = ingest.NewMemoryTelemetryWriter()

	if cfg.Stores.BlobEndpoint != "" {
		blobs = ingest.NewRESTBlobStore(cfg.Stores.BlobEndpoint, tokens)
	}
	if cfg.Stores.SearchEndpoint != "" {
		search = ingest.NewRESTSearchIndexer(cfg.Stores.SearchEndpoint, tokens)
	}
	if cfg.Stores.TelemetryEndpoint != "" {
		telemetry = ingest.NewRESTTelemetryWriter(cfg.Stores.TelemetryEndpoint, tokens)
	}
	return blobs, search, telemetry
}
