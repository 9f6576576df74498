package config

import "time"

// DefaultDefaults returns the built-in system-wide defaults applied when a
// conductor.yaml doesn't specify its own.
func DefaultDefaults() *Defaults {
	return &Defaults{
		BackendType:       "mock",
		GraphDatabase:     "demo",
		TelemetryDatabase: "demo",
		PromptsDatabase:   "demo",
		RequestTimeout:    120 * time.Second,
		SSETailSize:       100,
		SSEQueueSize:      256,
	}
}
