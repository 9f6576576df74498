package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseValidConfig() *Config {
	return &Config{
		Defaults:   DefaultDefaults(),
		Server:     DefaultServerConfig(),
		Resolver:   DefaultResolverConfig(),
		Credential: DefaultCredentialConfig(),
		Mock:       &MockConfig{},
	}
}

func TestValidator_ValidateAll(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing backend type", mutate: func(c *Config) { c.Defaults.BackendType = "" }, wantErr: true},
		{name: "zero sse tail size", mutate: func(c *Config) { c.Defaults.SSETailSize = 0 }, wantErr: true},
		{name: "zero sse queue size", mutate: func(c *Config) { c.Defaults.SSEQueueSize = 0 }, wantErr: true},
		{name: "non-positive request timeout", mutate: func(c *Config) { c.Defaults.RequestTimeout = 0 }, wantErr: true},
		{name: "port too low", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "zero body limit", mutate: func(c *Config) { c.Server.BodyLimitByte = 0 }, wantErr: true},
		{name: "negative resolver cache ttl", mutate: func(c *Config) { c.Resolver.CacheTTL = -time.Second }, wantErr: true},
		{name: "zero resolver cache ttl is valid (disables caching)", mutate: func(c *Config) { c.Resolver.CacheTTL = 0 }, wantErr: false},
		{name: "missing token scope", mutate: func(c *Config) { c.Credential.TokenScope = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseValidConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).ValidateAll()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
