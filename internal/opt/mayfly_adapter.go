package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/param"
)

// MinMayflyPopulation is the smallest population the mayfly library accepts.
const MinMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to the
// Optimizer interface. The library uses the domain's scalar bounds directly
// and cannot be interrupted, so once ctx is cancelled the remaining
// evaluations return +Inf without calling the objective.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) (*MayflyAdapter, error) {
	if maxIters <= 0 {
		return nil, &param.ConfigError{Field: "MaxIterations", Reason: fmt.Sprintf("must be positive, got %d", maxIters)}
	}
	if popSize < MinMayflyPopulation {
		return nil, &param.ConfigError{Field: "PopSize", Reason: fmt.Sprintf("must be at least %d, got %d", MinMayflyPopulation, popSize)}
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}, nil
}

func (m *MayflyAdapter) Name() string { return "mayfly" }

// Run executes the Mayfly optimization using the external library.
// Failed evaluations are reported to the library as +Inf.
func (m *MayflyAdapter) Run(ctx context.Context, fn objective.Function, opts RunOptions) (*Result, error) {
	d := fn.Domain()
	start, err := startPoint(fn, opts)
	if err != nil {
		return nil, err
	}

	t := newTracker(opts)
	t.sigma = d.Sigma()
	t.evaluate(fn, start)

	eval := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		bounded := d.ApplyBounds(x, nil)
		cost, ok := t.evaluate(fn, bounded)
		if !ok {
			return math.Inf(1)
		}
		return cost
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = d.Dim()
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = d.Lower()
	config.UpperBound = d.Upper()
	config.Rand = rand.New(rand.NewSource(m.seed))

	slog.Info("Starting mayfly",
		"function", fn.Name(),
		"dim", d.Dim(),
		"max_iters", m.maxIters,
		"pop_size", m.popSize,
	)

	if _, err := mayfly.Optimize(config); err != nil {
		if t.result.BestPoint == nil {
			return nil, fmt.Errorf("mayfly optimization failed: %w", err)
		}
		slog.Warn("Mayfly optimization failed, keeping best point so far", "error", err)
	}

	res, err := t.finish(ctx.Err())
	if res != nil {
		slog.Info("Mayfly finished",
			"function", fn.Name(),
			"evaluations", res.Evaluations,
			"failures", res.Failures,
			"best_cost", res.BestCost,
		)
	}
	return res, err
}
