package scenarios

import (
	_ "embed"
	"fmt"

	"github.com/aristath/poolrisk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed sample_pool.yaml
var samplePoolYAML []byte

// SamplePool returns the reference three-tranche pool used by the CLI when no
// input file is given
func SamplePool() domain.PoolDescriptor {
	pool, err := ParsePool(samplePoolYAML)
	if err != nil {
		panic(fmt.Sprintf("scenarios: embedded sample pool is invalid: %v", err))
	}
	return pool
}

// ParsePool decodes and validates a pool descriptor from YAML
func ParsePool(data []byte) (domain.PoolDescriptor, error) {
	var pool domain.PoolDescriptor
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return domain.PoolDescriptor{}, domain.NewConfigurationError("pool", "parse: %v", err)
	}
	if err := pool.Validate(); err != nil {
		return domain.PoolDescriptor{}, err
	}
	return pool, nil
}
