// Package scenarios provides the built-in scenario presets.
package scenarios

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/aristath/poolrisk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a named scenario with a short description
type Preset struct {
	Description string                    `yaml:"description" json:"description"`
	Scenario    domain.ScenarioParameters `yaml:"scenario" json:"scenario"`
}

var presets = mustLoad(presetsYAML)

func mustLoad(data []byte) []Preset {
	out, err := parse(data)
	if err != nil {
		panic(fmt.Sprintf("scenarios: embedded presets are invalid: %v", err))
	}
	return out
}

func parse(data []byte) ([]Preset, error) {
	var out []Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		if err := p.Scenario.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Scenario.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Scenario.Name)
		}
		seen[p.Scenario.Name] = true
	}
	return out, nil
}

// Presets returns the built-in presets in declaration order
func Presets() []Preset {
	out := make([]Preset, len(presets))
	for i, p := range presets {
		out[i] = p
		out[i].Scenario.ConfidenceLevels = append([]float64(nil), p.Scenario.ConfidenceLevels...)
	}
	return out
}

// Names returns the preset names in declaration order
func Names() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Scenario.Name
	}
	return names
}

// Get returns the scenario of the named preset (case-insensitive)
func Get(name string) (domain.ScenarioParameters, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Scenario.Name, strings.TrimSpace(name)) {
			return p.Scenario, nil
		}
	}
	return domain.ScenarioParameters{}, domain.NewConfigurationError("scenario", "unknown preset %q (available: %s)", name, strings.Join(Names(), ", "))
}
