package runner

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwbudde/imagebench/internal/metrics"
	"github.com/cwbudde/imagebench/internal/objective"
	"github.com/cwbudde/imagebench/internal/opt"
	"github.com/cwbudde/imagebench/internal/store"
)

func writeTarget(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 100, A: 255})
		}
	}
	path := filepath.Join(dir, "target.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRunner(t *testing.T) (*Runner, store.RunConfig) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFSStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	cfg := DefaultRunConfig()
	cfg.TargetPath = writeTarget(t, dir)
	cfg.Budget = 40
	cfg.PopSize = 10
	return &Runner{Store: st}, cfg
}

func TestRunnerStartRecovery(t *testing.T) {
	r, cfg := newTestRunner(t)

	out, err := r.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if out.RunID == "" {
		t.Fatal("Empty run id")
	}
	if out.Result.Evaluations != 40 || out.Checkpoint.Evaluations != 40 {
		t.Errorf("Evaluations = %d / %d, want 40", out.Result.Evaluations, out.Checkpoint.Evaluations)
	}
	if out.Checkpoint.BestCost > out.Checkpoint.InitialCost {
		t.Errorf("Best cost %f worse than initial %f", out.Checkpoint.BestCost, out.Checkpoint.InitialCost)
	}

	loaded, err := r.Store.LoadCheckpoint(out.RunID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Saved checkpoint invalid: %v", err)
	}
	if loaded.Descriptors["function"] != "recovery" {
		t.Errorf("Descriptors = %v", loaded.Descriptors)
	}

	if _, err := os.Stat(filepath.Join(r.Store.RunDir(out.RunID), "best.png")); err != nil {
		t.Errorf("best.png missing: %v", err)
	}
	trace, err := store.ReadTrace(r.Store.BaseDir(), out.RunID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(trace) == 0 {
		t.Fatal("Empty trace")
	}
	for i := 1; i < len(trace); i++ {
		if trace[i].Cost > trace[i-1].Cost {
			t.Errorf("Trace best cost increased at %d: %f > %f", i, trace[i].Cost, trace[i-1].Cost)
		}
	}
}

func TestRunnerResume(t *testing.T) {
	r, cfg := newTestRunner(t)
	ctx := context.Background()

	first, err := r.Start(ctx, cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before, _ := store.ReadTrace(r.Store.BaseDir(), first.RunID)

	resumed, err := r.Resume(ctx, first.RunID, nil)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.RunID != first.RunID {
		t.Errorf("Resume changed run id")
	}
	if resumed.Checkpoint.Evaluations != 80 {
		t.Errorf("Evaluations = %d, want 80", resumed.Checkpoint.Evaluations)
	}
	if resumed.Checkpoint.BestCost > first.Checkpoint.BestCost {
		t.Errorf("Resume lost progress: %f > %f", resumed.Checkpoint.BestCost, first.Checkpoint.BestCost)
	}
	if resumed.Checkpoint.InitialCost != first.Checkpoint.InitialCost {
		t.Errorf("InitialCost changed on resume: %f != %f", resumed.Checkpoint.InitialCost, first.Checkpoint.InitialCost)
	}

	after, _ := store.ReadTrace(r.Store.BaseDir(), first.RunID)
	if len(after) <= len(before) {
		t.Errorf("Trace not appended: %d -> %d entries", len(before), len(after))
	}
	if last := after[len(after)-1]; last.Evaluation != 80 {
		t.Errorf("Last trace evaluation = %d, want 80", last.Evaluation)
	}
}

func TestRunnerResumeIncompatible(t *testing.T) {
	r, cfg := newTestRunner(t)
	ctx := context.Background()

	first, err := r.Start(ctx, cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	other := cfg
	other.TargetPath = "elsewhere.png"
	_, err = r.Resume(ctx, first.RunID, &other)
	var cerr *store.CompatibilityError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CompatibilityError, got %v", err)
	}

	changed := cfg
	changed.Budget = 2
	changed.PopSize = opt.MinMayflyPopulation
	changed.Optimizer = OptimizerMayfly
	out, err := r.Resume(ctx, first.RunID, &changed)
	if err != nil {
		t.Fatalf("Resume with new optimizer failed: %v", err)
	}
	if out.Checkpoint.Config.Optimizer != OptimizerMayfly {
		t.Errorf("Stored optimizer = %s", out.Checkpoint.Config.Optimizer)
	}
}

func TestRunnerResumeMissing(t *testing.T) {
	r, _ := newTestRunner(t)
	if _, err := r.Resume(context.Background(), "missing", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestRunnerInterruptedAfterCheckpoint(t *testing.T) {
	r, cfg := newTestRunner(t)
	cfg.Budget = 1000
	cfg.CheckpointEvery = 10
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := r.Start(&cancelOnCheckpoint{Context: ctx, cancel: cancel, base: r.Store.BaseDir()}, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if out == nil || out.Checkpoint == nil {
		t.Fatal("Interrupted run did not return its checkpoint")
	}
	if out.Checkpoint.Evaluations != 10 {
		t.Errorf("Evaluations = %d, want 10", out.Checkpoint.Evaluations)
	}
	if _, err := r.Store.LoadCheckpoint(out.RunID); err != nil {
		t.Errorf("Checkpoint of interrupted run missing: %v", err)
	}
}

// cancelOnCheckpoint cancels itself once any run directory under base holds
// a checkpoint file.
type cancelOnCheckpoint struct {
	context.Context
	cancel context.CancelFunc
	base   string
}

func (c *cancelOnCheckpoint) Err() error {
	matches, _ := filepath.Glob(filepath.Join(c.base, "runs", "*", "checkpoint.json"))
	if len(matches) > 0 {
		c.cancel()
	}
	return c.Context.Err()
}

func TestRunnerMetrics(t *testing.T) {
	r, cfg := newTestRunner(t)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	r.Metrics = collector

	out, err := r.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	if got := values["imagebench_evaluations_total"]; got != 40 {
		t.Errorf("evaluations_total = %v, want 40", got)
	}
	if got := values["imagebench_best_cost"]; got != out.Checkpoint.BestCost {
		t.Errorf("best_cost = %v, want %v", got, out.Checkpoint.BestCost)
	}
}

func TestRunnerInvalidConfig(t *testing.T) {
	r, cfg := newTestRunner(t)
	cfg.Budget = 0
	var verr *store.ValidationError
	if _, err := r.Start(context.Background(), cfg); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}

	cfg.Budget = 10
	cfg.TargetPath = filepath.Join(t.TempDir(), "missing.png")
	if _, err := r.Start(context.Background(), cfg); !errors.Is(err, &objective.LoadError{}) {
		t.Errorf("Expected LoadError, got %v", err)
	}
}
