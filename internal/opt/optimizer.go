// Package opt drives derivative-free optimizers over objective functions.
package opt

import (
	"context"
	"errors"
	"math"

	"github.com/cwbudde/imagebench/internal/objective"
)

// ErrNoValidEvaluation is returned when every evaluation of a run failed.
var ErrNoValidEvaluation = errors.New("no evaluation succeeded")

// Optimizer minimizes an objective function within its domain.
type Optimizer interface {
	// Name identifies the algorithm in logs and checkpoints.
	Name() string

	// Run minimizes fn. Failed evaluations are counted and skipped.
	// On cancellation Run returns the best result so far together with
	// the context error.
	Run(ctx context.Context, fn objective.Function, opts RunOptions) (*Result, error)
}

// RunOptions are per-run settings shared by all optimizers.
type RunOptions struct {
	// Start replaces the domain's init point as the first candidate,
	// e.g. the best point of a checkpoint.
	Start []float64

	// Progress is called after every ProgressEvery evaluations that have
	// produced at least one valid cost.
	Progress      func(Progress)
	ProgressEvery int
}

// Progress is a snapshot of a running optimization.
// BestPoint is shared with the optimizer and must not be modified.
type Progress struct {
	Evaluations int
	Failures    int
	InitialCost float64
	BestCost    float64
	BestPoint   []float64
	Sigma       float64
}

// Result is the outcome of a run.
type Result struct {
	BestPoint   []float64
	BestCost    float64
	InitialCost float64 // cost of the first candidate, NaN if it failed
	Evaluations int     // including failed ones
	Failures    int
	Converged   bool
}

// tracker records the best point seen by an optimizer and reports progress.
type tracker struct {
	opts    RunOptions
	result  Result
	lastErr error
	sigma   float64
}

func newTracker(opts RunOptions) *tracker {
	return &tracker{
		opts: opts,
		result: Result{
			BestCost:    math.Inf(1),
			InitialCost: math.NaN(),
		},
	}
}

// evaluate runs fn on x and records the outcome. ok is false when the
// evaluation failed.
func (t *tracker) evaluate(fn objective.Function, x []float64) (cost float64, ok bool) {
	cost, err := fn.Evaluate(x)
	t.result.Evaluations++
	first := t.result.Evaluations == 1
	if err != nil {
		t.result.Failures++
		t.lastErr = err
		return 0, false
	}
	if first {
		t.result.InitialCost = cost
	}
	if cost < t.result.BestCost {
		t.result.BestCost = cost
		t.result.BestPoint = append(t.result.BestPoint[:0], x...)
	}
	if t.opts.Progress != nil && t.opts.ProgressEvery > 0 && t.result.Evaluations%t.opts.ProgressEvery == 0 {
		t.report()
	}
	return cost, true
}

func (t *tracker) report() {
	if t.opts.Progress == nil || t.result.BestPoint == nil {
		return
	}
	t.opts.Progress(Progress{
		Evaluations: t.result.Evaluations,
		Failures:    t.result.Failures,
		InitialCost: t.result.InitialCost,
		BestCost:    t.result.BestCost,
		BestPoint:   t.result.BestPoint,
		Sigma:       t.sigma,
	})
}

// finish returns the result, or an error when nothing succeeded.
func (t *tracker) finish(ctxErr error) (*Result, error) {
	if t.result.BestPoint == nil {
		if ctxErr != nil {
			return nil, ctxErr
		}
		if t.lastErr != nil {
			return nil, errors.Join(ErrNoValidEvaluation, t.lastErr)
		}
		return nil, ErrNoValidEvaluation
	}
	t.report()
	res := t.result
	res.BestPoint = append([]float64(nil), t.result.BestPoint...)
	return &res, ctxErr
}

// startPoint returns the first candidate of a run: opts.Start bounded into
// the domain, or the domain's init point.
func startPoint(fn objective.Function, opts RunOptions) ([]float64, error) {
	d := fn.Domain()
	if opts.Start == nil {
		return d.Init(), nil
	}
	if err := d.Check(opts.Start); err != nil {
		return nil, err
	}
	return d.ApplyBounds(opts.Start, nil), nil
}
