package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/netsentry/conductor/pkg/config"
	"gopkg.in/yaml.v3"
)

// decodeScenario/encodeScenario round-trip a config.Scenario through JSON
// (it carries json tags, unlike ScenarioConfig which is YAML-manifest
// shaped) so it can live in a store.Document's map[string]any body.
func decodeScenario(body map[string]any, out *config.Scenario) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeScenario(s config.Scenario) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeScenarioConfig converts a document body (as decoded from the
// store's JSONB column, keyed by the YAML field names scenario manifests
// use) into a config.ScenarioConfig. Round-tripping through YAML (rather
// than JSON) lets this reuse ScenarioConfig's existing `yaml:"..."` tags
// instead of requiring a second set of json tags kept in sync by hand.
func decodeScenarioConfig(body map[string]any, out *config.ScenarioConfig) error {
	raw, err := yaml.Marshal(body)
	if err != nil {
		return fmt.Errorf("scenario: re-encode config body: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("scenario: decode config body: %w", err)
	}
	return nil
}

// encodeScenarioConfig is decodeScenarioConfig's inverse, used when saving
// a ScenarioConfig back into the document store.
func encodeScenarioConfig(cfg config.ScenarioConfig) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario: encode config: %w", err)
	}
	var body map[string]any
	if err := yaml.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("scenario: re-decode config: %w", err)
	}
	return body, nil
}
