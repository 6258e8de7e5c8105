package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/cwbudde/imagebench/internal/benchmark"
	"github.com/cwbudde/imagebench/internal/imaging"
	"github.com/cwbudde/imagebench/internal/nn"
	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/opt"
	"github.com/cwbudde/imagebench/internal/store"
)

// Optimizer names accepted in a RunConfig.
const (
	OptimizerEvolution = "evolution"
	OptimizerMayfly    = "mayfly"
)

// LinearWeights is the file format of a linear classifier: out x in weights
// and out biases, as YAML or JSON.
type LinearWeights struct {
	Weight [][]float64 `json:"weight"`
	Bias   []float64   `json:"bias"`
}

// LoadClassifier reads a LinearWeights file.
func LoadClassifier(path string) (*nn.Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &objective.LoadError{Path: path, Err: err}
	}
	var w LinearWeights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, &objective.LoadError{Path: path, Err: err}
	}
	return nn.NewLinearWithWeights(w.Weight, w.Bias)
}

// BuildObjective constructs the objective function a RunConfig describes.
// Benchmark presets are built without shuffling and with a fixed seed, so
// the same config always yields the same instance.
func BuildObjective(ctx context.Context, cfg store.RunConfig, codec imaging.Codec) (objective.Function, error) {
	if codec == nil {
		codec = imaging.FileCodec{}
	}

	switch cfg.Problem {
	case store.ProblemRecovery:
		return objective.NewRecovery(cfg.TargetPath, codec)

	case store.ProblemBenchmark:
		seq, err := NewBenchmark(cfg, codec)
		if err != nil {
			return nil, err
		}
		fn, err := seq.At(ctx, cfg.Instance)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("benchmark %s has only %d instance(s), %d requested", cfg.Benchmark, seq.Yielded(), cfg.Instance+1)
		}
		if err != nil {
			return nil, err
		}
		return fn, nil

	default:
		return nil, fmt.Errorf("unknown problem %q", cfg.Problem)
	}
}

// NewBenchmark opens the benchmark sequence a RunConfig names, loading its
// classifier weights when one is given.
func NewBenchmark(cfg store.RunConfig, codec imaging.Codec) (*benchmark.Sequence, error) {
	bcfg := benchmark.DefaultConfig()
	bcfg.Shuffle = false
	bcfg.DataDir = cfg.DataDir
	bcfg.Codec = codec
	if cfg.Classifier != "" {
		clf, err := LoadClassifier(cfg.Classifier)
		if err != nil {
			return nil, err
		}
		bcfg.Classifier = clf
	}
	return benchmark.Make(cfg.Benchmark, bcfg)
}

// BuildOptimizer constructs the optimizer a RunConfig names.
func BuildOptimizer(cfg store.RunConfig) (opt.Optimizer, error) {
	switch cfg.Optimizer {
	case OptimizerEvolution:
		ecfg := opt.DefaultEvolutionConfig()
		ecfg.Budget = cfg.Budget
		ecfg.PopSize = cfg.PopSize
		ecfg.Seed = uint64(cfg.Seed)
		if cfg.NoConvergence {
			ecfg.Convergence = opt.DisabledConvergenceConfig()
		}
		e, err := opt.NewEvolution(ecfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case OptimizerMayfly:
		m, err := opt.NewMayfly(cfg.Budget, cfg.PopSize, cfg.Seed)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want %s or %s)", cfg.Optimizer, OptimizerEvolution, OptimizerMayfly)
	}
}
