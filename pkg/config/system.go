package config

import "time"

// ServerConfig holds the HTTP server's own settings, kept separate from
// per-scenario/backend configuration.
type ServerConfig struct {
	Host          string `yaml:"host,omitempty"`
	Port          int    `yaml:"port,omitempty"`
	BodyLimitByte int64  `yaml:"body_limit_bytes,omitempty"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		BodyLimitByte: 64 << 20, // 64MiB, generous enough for a scenario data-pack upload
	}
}

// ResolverConfig controls the scenario context resolver's in-process
// config cache.
type ResolverConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
}

// DefaultResolverConfig returns the built-in resolver defaults.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{CacheTTL: 5 * time.Second}
}

// CredentialConfig configures the shared credential-provider singleton
// (pkg/credential) used by the remote-GQL and KQL backends.
type CredentialConfig struct {
	TokenScope string `yaml:"token_scope,omitempty"`
}

// DefaultCredentialConfig returns the built-in credential defaults.
func DefaultCredentialConfig() *CredentialConfig {
	return &CredentialConfig{TokenScope: "https://management.azure.com/.default"}
}

// MockConfig configures the mock backend's canned-data directory.
type MockConfig struct {
	CSVDir string `yaml:"csv_dir,omitempty"`
}

// StoresConfig points at the external stores the ingestion pipeline writes
// through. An empty endpoint makes the server use an in-memory stand-in
// for that store (as local dev and tests do); the upload kinds stay enabled.
type StoresConfig struct {
	BlobEndpoint      string `yaml:"blob_endpoint,omitempty"`
	SearchEndpoint    string `yaml:"search_endpoint,omitempty"`
	TelemetryEndpoint string `yaml:"telemetry_endpoint,omitempty"`
}

// RuntimeConfig configures the external hosted-agent runtime client. An
// empty Endpoint means the runtime is not configured and the orchestration
// bridge falls back to its local-dev stub walkthrough.
type RuntimeConfig struct {
	Endpoint     string `yaml:"endpoint,omitempty"`
	Orchestrator string `yaml:"orchestrator,omitempty"`
}

// DefaultRuntimeConfig returns the built-in runtime defaults: unconfigured
// endpoint (stub mode) with the conventional orchestrator agent name.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{Orchestrator: "orchestrator"}
}

// NativeGraphBackendConfig carries the settings the native-graph connector
// requires. The wire protocol authenticates with a key, not federated
// identity.
type NativeGraphBackendConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	AuthKey  string `yaml:"auth_key,omitempty"`
}

// RemoteGQLBackendConfig carries the settings the remote-GQL connector
// requires. Tokens come from the shared credential provider.
type RemoteGQLBackendConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// KQLBackendConfig carries the settings the KQL telemetry connector requires.
type KQLBackendConfig struct {
	ClusterURI string `yaml:"cluster_uri,omitempty"`
	Database   string `yaml:"database,omitempty"`
}

// SQLBackendConfig carries the settings the document-SQL telemetry
// connector requires.
type SQLBackendConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// BackendsConfig groups per-connector settings. A connector left
// unconfigured is detected at startup and logged as a warning — the
// process keeps running so other backends remain usable, and requests
// routed to the unconfigured connector fail at query time with a clear
// config_missing error.
type BackendsConfig struct {
	NativeGraph *NativeGraphBackendConfig `yaml:"native_graph,omitempty"`
	RemoteGQL   *RemoteGQLBackendConfig   `yaml:"remote_gql,omitempty"`
	KQL         *KQLBackendConfig         `yaml:"kql,omitempty"`
	SQL         *SQLBackendConfig         `yaml:"sql,omitempty"`
}

// MissingVars reports which required settings are absent for each
// connector that has been at least partially configured — plus the
// selected default connector, configured or not. The caller logs these as
// warnings at startup.
func (b *BackendsConfig) MissingVars(defaultBackendType string) map[string][]string {
	missing := map[string][]string{}
	checkNative := b.NativeGraph != nil || defaultBackendType == "native-graph"
	if checkNative {
		var vars []string
		if b.NativeGraph == nil || b.NativeGraph.Endpoint == "" {
			vars = append(vars, "backends.native_graph.endpoint")
		}
		if b.NativeGraph == nil || b.NativeGraph.AuthKey == "" {
			vars = append(vars, "backends.native_graph.auth_key")
		}
		if len(vars) > 0 {
			missing["native-graph"] = vars
		}
	}
	if b.RemoteGQL != nil || defaultBackendType == "remote-gql" {
		if b.RemoteGQL == nil || b.RemoteGQL.Endpoint == "" {
			missing["remote-gql"] = []string{"backends.remote_gql.endpoint"}
		}
	}
	if b.KQL != nil || defaultBackendType == "kql" {
		var vars []string
		if b.KQL == nil || b.KQL.ClusterURI == "" {
			vars = append(vars, "backends.kql.cluster_uri")
		}
		if b.KQL == nil || b.KQL.Database == "" {
			vars = append(vars, "backends.kql.database")
		}
		if len(vars) > 0 {
			missing["kql"] = vars
		}
	}
	if b.SQL != nil || defaultBackendType == "sql" {
		if b.SQL == nil || b.SQL.DSN == "" {
			missing["sql"] = []string{"backends.sql.dsn"}
		}
	}
	return missing
}
