package runner

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/cwbudde/imagebench/internal/store"
)

// DefaultRunConfig returns the settings used when neither a config file nor
// flags say otherwise.
func DefaultRunConfig() store.RunConfig {
	return store.RunConfig{
		Problem:   store.ProblemRecovery,
		Optimizer: OptimizerEvolution,
		Budget:    1000,
		PopSize:   20,
		Seed:      42,
	}
}

// LoadRunConfig reads a YAML (or JSON) run file on top of base. Keys missing
// from the file keep their value from base.
func LoadRunConfig(path string, base store.RunConfig) (store.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read run config: %w", err)
	}
	cfg := base
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse run config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteRunConfig stores cfg as YAML, e.g. as a template for later runs.
func WriteRunConfig(path string, cfg store.RunConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
