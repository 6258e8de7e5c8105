// Package runner executes optimization runs against objective functions and
// persists their checkpoints, traces and images.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/imagebench/internal/imaging"
	"github.com/cwbudde/imagebench/internal/metrics"
	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/opt"
	"github.com/cwbudde/imagebench/internal/store"
)

// Runner executes runs. Metrics and Codec are optional.
type Runner struct {
	Store   *store.FSStore
	Metrics *metrics.Collector
	Codec   imaging.Codec
}

// Outcome describes a finished (or interrupted) run.
type Outcome struct {
	RunID      string
	Result     *opt.Result // this invocation only
	Checkpoint *store.Checkpoint
	Artifacts  []string // image names saved next to the checkpoint
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Start validates cfg and runs a new optimization under a fresh run id.
func (r *Runner) Start(ctx context.Context, cfg store.RunConfig) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return r.execute(ctx, NewRunID(), cfg, nil)
}

// Resume continues runID from its checkpoint. A non-nil cfg replaces the
// stored config; it may change optimizer settings but must describe the same
// objective. The budget applies to this invocation only.
func (r *Runner) Resume(ctx context.Context, runID string, cfg *store.RunConfig) (*Outcome, error) {
	prev, err := r.Store.LoadCheckpoint(runID)
	if err != nil {
		return nil, err
	}
	if err := prev.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint of run %s is invalid: %w", runID, err)
	}

	runCfg := prev.Config
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := prev.IsCompatible(*cfg); err != nil {
			return nil, err
		}
		runCfg = *cfg
	}
	return r.execute(ctx, runID, runCfg, prev)
}

func (r *Runner) execute(ctx context.Context, runID string, cfg store.RunConfig, prev *store.Checkpoint) (*Outcome, error) {
	fn, err := BuildObjective(ctx, cfg, r.Codec)
	if err != nil {
		return nil, err
	}
	optimizer, err := BuildOptimizer(cfg)
	if err != nil {
		return nil, err
	}

	var evaluated objective.Function = fn
	if r.Metrics != nil {
		evaluated = r.Metrics.Instrument(fn)
	}

	tw, err := store.NewTraceWriter(r.Store.BaseDir(), runID, prev != nil)
	if err != nil {
		return nil, err
	}
	defer tw.Close()

	offset := 0
	var start []float64
	if prev != nil {
		offset = prev.Evaluations
		start = prev.BestPoint
	}
	initialCost := func(current float64) float64 {
		if prev != nil {
			return prev.InitialCost
		}
		return current
	}

	slog.Info("Starting run",
		"run_id", runID,
		"function", fn.Name(),
		"optimizer", optimizer.Name(),
		"descriptors", fn.Descriptors().String(),
		"resumed", prev != nil,
		"offset", offset,
	)

	descriptors := map[string]string(fn.Descriptors())
	lastCheckpoint := 0
	progress := func(p opt.Progress) {
		entry := store.TraceEntry{
			Evaluation: offset + p.Evaluations,
			Cost:       p.BestCost,
			Sigma:      p.Sigma,
			Timestamp:  time.Now(),
		}
		if err := tw.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "run_id", runID, "error", err)
		}
		if r.Metrics != nil {
			r.Metrics.SetBestCost(fn.Name(), p.BestCost)
		}

		if cfg.CheckpointEvery <= 0 || p.Evaluations-lastCheckpoint < cfg.CheckpointEvery {
			return
		}
		lastCheckpoint = p.Evaluations
		cp := store.NewCheckpoint(runID, append([]float64(nil), p.BestPoint...), p.BestCost,
			finite(initialCost(p.InitialCost), p.BestCost), offset+p.Evaluations, cfg, descriptors)
		if err := r.Store.SaveCheckpoint(runID, cp); err != nil {
			slog.Error("Failed to save checkpoint", "run_id", runID, "error", err)
			return
		}
		slog.Debug("Periodic checkpoint saved", "run_id", runID, "evaluations", cp.Evaluations, "best_cost", cp.BestCost)
	}

	began := time.Now()
	res, runErr := optimizer.Run(ctx, evaluated, opt.RunOptions{
		Start:         start,
		Progress:      progress,
		ProgressEvery: max(1, cfg.PopSize),
	})
	if res == nil {
		slog.Error("Run failed", "run_id", runID, "error", runErr)
		return nil, runErr
	}

	cp := store.NewCheckpoint(runID, res.BestPoint, res.BestCost,
		finite(initialCost(res.InitialCost), res.BestCost), offset+res.Evaluations, cfg, descriptors)
	if err := r.Store.SaveCheckpoint(runID, cp); err != nil {
		return nil, fmt.Errorf("failed to save final checkpoint: %w", err)
	}
	artifacts, err := r.saveArtifacts(runID, fn, res.BestPoint)
	if err != nil {
		slog.Error("Failed to save images", "run_id", runID, "error", err)
	}
	if err := tw.Flush(); err != nil {
		slog.Warn("Failed to flush trace", "run_id", runID, "error", err)
	}

	out := &Outcome{RunID: runID, Result: res, Checkpoint: cp, Artifacts: artifacts}
	if runErr != nil {
		slog.Warn("Run interrupted, checkpoint saved",
			"run_id", runID,
			"evaluations", cp.Evaluations,
			"best_cost", cp.BestCost,
			"error", runErr,
		)
		return out, runErr
	}

	slog.Info("Run complete",
		"run_id", runID,
		"elapsed", time.Since(began),
		"evaluations", cp.Evaluations,
		"failures", res.Failures,
		"initial_cost", cp.InitialCost,
		"best_cost", cp.BestCost,
		"converged", res.Converged,
	)
	return out, nil
}

// saveArtifacts writes the images that make the best point inspectable.
func (r *Runner) saveArtifacts(runID string, fn objective.Function, best []float64) ([]string, error) {
	var saved []string
	switch f := fn.(type) {
	case *objective.Recovery:
		img, err := f.Render(best)
		if err != nil {
			return nil, err
		}
		if err := r.Store.SaveImage(runID, "best", img); err != nil {
			return nil, err
		}
		saved = append(saved, "best")

	case *objective.Adversarial:
		perturbed, err := f.Perturb(best)
		if err != nil {
			return nil, err
		}
		orig, err := imaging.FromTensor(f.Image())
		if err != nil {
			return nil, err
		}
		adv, err := imaging.FromTensor(perturbed)
		if err != nil {
			return nil, err
		}
		if err := r.Store.SaveImage(runID, "original", orig); err != nil {
			return nil, err
		}
		if err := r.Store.SaveImage(runID, "adversarial", adv); err != nil {
			return nil, err
		}
		saved = append(saved, "original", "adversarial")
	}
	return saved, nil
}

// finite returns v, or fallback when v is NaN or infinite.
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
