package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// conductorYAMLConfig represents the complete conductor.yaml file structure.
type conductorYAMLConfig struct {
	Defaults   *Defaults         `yaml:"defaults"`
	Server     *ServerConfig     `yaml:"server"`
	Resolver   *ResolverConfig   `yaml:"resolver"`
	Credential *CredentialConfig `yaml:"credential"`
	Mock       *MockConfig       `yaml:"mock"`
	Runtime    *RuntimeConfig    `yaml:"runtime"`
	Backends   *BackendsConfig   `yaml:"backends"`
	Stores     *StoresConfig     `yaml:"stores"`
}

// Initialize loads, validates, and returns ready-to-use system configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load conductor.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Layer built-in defaults under user YAML (user wins on any set field)
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Missing settings for a configured (or default) backend are a warning,
	// not a startup failure: other backends stay usable, and requests
	// routed to the unconfigured one fail at query time with a clear error.
	for connector, vars := range cfg.Backends.MissingVars(cfg.Defaults.BackendType) {
		log.Warn("Backend is missing required configuration; queries to it will fail",
			"connector", connector, "missing", vars)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"backend_type", stats.BackendType,
		"graph_database", stats.GraphDatabase)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadConductorYAML()
	if err != nil {
		return nil, NewLoadError("conductor.yaml", err)
	}

	defaults := DefaultDefaults()
	if yamlCfg.Defaults != nil {
		if err := mergo.Merge(defaults, yamlCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	server := DefaultServerConfig()
	if yamlCfg.Server != nil {
		if err := mergo.Merge(server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	resolver := DefaultResolverConfig()
	if yamlCfg.Resolver != nil {
		if err := mergo.Merge(resolver, yamlCfg.Resolver, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge resolver config: %w", err)
		}
	}

	credential := DefaultCredentialConfig()
	if yamlCfg.Credential != nil {
		if err := mergo.Merge(credential, yamlCfg.Credential, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge credential config: %w", err)
		}
	}

	mock := &MockConfig{}
	if yamlCfg.Mock != nil {
		mock = yamlCfg.Mock
	}

	rt := DefaultRuntimeConfig()
	if yamlCfg.Runtime != nil {
		if err := mergo.Merge(rt, yamlCfg.Runtime, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge runtime config: %w", err)
		}
	}

	backends := &BackendsConfig{}
	if yamlCfg.Backends != nil {
		backends = yamlCfg.Backends
	}

	stores := &StoresConfig{}
	if yamlCfg.Stores != nil {
		stores = yamlCfg.Stores
	}

	return &Config{
		configDir:  configDir,
		Defaults:   defaults,
		Server:     server,
		Resolver:   resolver,
		Credential: credential,
		Mock:       mock,
		Runtime:    rt,
		Backends:   backends,
		Stores:     stores,
	}, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadConductorYAML() (*conductorYAMLConfig, error) {
	path := filepath.Join(l.configDir, "conductor.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file at all is a valid configuration: every section falls
			// back to its built-in defaults.
			return &conductorYAMLConfig{}, nil
		}
		return nil, err
	}

	// Expand ${VAR}/$VAR references before parsing (mirrors envexpand.go).
	data = ExpandEnv(data)

	var cfg conductorYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}
