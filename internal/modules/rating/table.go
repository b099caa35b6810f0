// Package rating maps risk reports onto agency-style rating scales using an
// external threshold table.
package rating

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/aristath/poolrisk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_table.yaml
var defaultTableYAML []byte

// DefaultFloorLabel is assigned when a report is worse than every bucket of a
// scale that has no catch-all bucket
const DefaultFloorLabel = "D"

// Bucket is one rating label with its upper thresholds, in percent
type Bucket struct {
	Label           string  `yaml:"label" json:"label"`
	ExpectedLossMax float64 `yaml:"expected_loss_max" json:"expected_loss_max"`
	VaR99Max        float64 `yaml:"var99_max" json:"var99_max"`
}

// MarshalJSON renders an open-ended threshold as null
func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label           string   `json:"label"`
		ExpectedLossMax *float64 `json:"expected_loss_max"`
		VaR99Max        *float64 `json:"var99_max"`
	}{
		Label:           b.Label,
		ExpectedLossMax: finiteOrNil(b.ExpectedLossMax),
		VaR99Max:        finiteOrNil(b.VaR99Max),
	})
}

// Scale is one agency's ordered bucket list, best first
type Scale struct {
	Name       string   `yaml:"name" json:"name"`
	FloorLabel string   `yaml:"floor_label,omitempty" json:"floor_label"`
	Buckets    []Bucket `yaml:"buckets" json:"buckets"`
}

// openEnded reports whether the last bucket catches everything
func (s Scale) openEnded() bool {
	last := s.Buckets[len(s.Buckets)-1]
	return math.IsInf(last.ExpectedLossMax, 1) && math.IsInf(last.VaR99Max, 1)
}

// Table is a versioned set of rating scales
type Table struct {
	Version    string  `yaml:"version" json:"version"`
	FloorLabel string  `yaml:"floor_label,omitempty" json:"floor_label"`
	Scales     []Scale `yaml:"scales" json:"scales"`
}

// DefaultTable returns the embedded threshold table
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableYAML)
}

// DefaultTableYAML returns a copy of the embedded table source, as a starting
// point for a custom table file
func DefaultTableYAML() []byte {
	return append([]byte(nil), defaultTableYAML...)
}

// LoadTable reads a threshold table from path, or the embedded table when
// path is empty
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rating table: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("rating table %s: %w", path, err)
	}
	return table, nil
}

// ParseTable decodes and validates a YAML threshold table
func ParseTable(data []byte) (*Table, error) {
	table := &Table{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, domain.NewConfigurationError("rating_table", "parse: %v", err)
	}
	table.applyDefaults()
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table) applyDefaults() {
	if t.FloorLabel == "" {
		t.FloorLabel = DefaultFloorLabel
	}
	for i := range t.Scales {
		if t.Scales[i].FloorLabel == "" {
			t.Scales[i].FloorLabel = t.FloorLabel
		}
	}
}

// Validate checks that every scale is non-empty, has unique labels and
// strictly increasing, non-negative thresholds on both metrics
func (t *Table) Validate() error {
	if len(t.Scales) == 0 {
		return domain.NewConfigurationError("rating_table.scales", "at least one scale is required")
	}

	seenScales := make(map[string]bool, len(t.Scales))
	for i, scale := range t.Scales {
		field := fmt.Sprintf("rating_table.scales[%d]", i)
		name := strings.TrimSpace(scale.Name)
		if name == "" {
			return domain.NewConfigurationError(field+".name", "is required")
		}
		if seenScales[name] {
			return domain.NewConfigurationError(field+".name", "duplicate scale %q", name)
		}
		seenScales[name] = true

		if len(scale.Buckets) == 0 {
			return domain.NewConfigurationError(field+".buckets", "scale %q has no buckets", name)
		}

		labels := make(map[string]bool, len(scale.Buckets))
		for j, b := range scale.Buckets {
			bucketField := fmt.Sprintf("%s.buckets[%d]", field, j)
			if strings.TrimSpace(b.Label) == "" {
				return domain.NewConfigurationError(bucketField+".label", "is required")
			}
			if labels[b.Label] {
				return domain.NewConfigurationError(bucketField+".label", "duplicate label %q in scale %q", b.Label, name)
			}
			labels[b.Label] = true

			if math.IsNaN(b.ExpectedLossMax) || b.ExpectedLossMax < 0 {
				return domain.NewConfigurationError(bucketField+".expected_loss_max", "must be non-negative, got %v", b.ExpectedLossMax)
			}
			if math.IsNaN(b.VaR99Max) || b.VaR99Max < 0 {
				return domain.NewConfigurationError(bucketField+".var99_max", "must be non-negative, got %v", b.VaR99Max)
			}
			if j > 0 {
				prev := scale.Buckets[j-1]
				if b.ExpectedLossMax <= prev.ExpectedLossMax {
					return domain.NewConfigurationError(bucketField+".expected_loss_max",
						"thresholds must strictly increase from best to worst (%v after %v)", b.ExpectedLossMax, prev.ExpectedLossMax)
				}
				if b.VaR99Max <= prev.VaR99Max {
					return domain.NewConfigurationError(bucketField+".var99_max",
						"thresholds must strictly increase from best to worst (%v after %v)", b.VaR99Max, prev.VaR99Max)
				}
			}
		}
		if !scale.openEnded() && labels[scale.FloorLabel] {
			return domain.NewConfigurationError(field+".floor_label", "floor label %q collides with a bucket label", scale.FloorLabel)
		}
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
