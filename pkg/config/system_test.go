package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendsConfig_MissingVarsForSelectedDefault(t *testing.T) {
	b := &BackendsConfig{}
	missing := b.MissingVars("native-graph")
	assert.Contains(t, missing, "native-graph")
	assert.Len(t, missing["native-graph"], 2)
	// Connectors neither configured nor selected are not reported.
	assert.NotContains(t, missing, "kql")
}

func TestBackendsConfig_MissingVarsForPartialConfig(t *testing.T) {
	b := &BackendsConfig{
		KQL:       &KQLBackendConfig{ClusterURI: "https://cluster.example.com"},
		RemoteGQL: &RemoteGQLBackendConfig{Endpoint: "https://gql.example.com"},
	}
	missing := b.MissingVars("mock")
	assert.Equal(t, []string{"backends.kql.database"}, missing["kql"])
	assert.NotContains(t, missing, "remote-gql")
}

func TestBackendsConfig_FullyConfiguredReportsNothing(t *testing.T) {
	b := &BackendsConfig{
		NativeGraph: &NativeGraphBackendConfig{Endpoint: "wss://g.example.com", AuthKey: "key"},
		SQL:         &SQLBackendConfig{DSN: "postgres://telemetry"},
	}
	assert.Empty(t, b.MissingVars("native-graph"))
}
