package store

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Problem kinds a run can optimize.
const (
	ProblemRecovery  = "recovery"
	ProblemBenchmark = "benchmark"
)

// RunConfig describes an optimization run. It is stored in every checkpoint
// so a run can be resumed against the same objective.
type RunConfig struct {
	Problem    string `json:"problem"`              // recovery, benchmark
	TargetPath string `json:"targetPath,omitempty"` // recovery target image
	Benchmark  string `json:"benchmark,omitempty"`  // benchmark preset name
	Instance   int    `json:"instance,omitempty"`   // index into the benchmark sequence
	DataDir    string `json:"dataDir,omitempty"`    // image folder for dataset-backed benchmarks
	Classifier string `json:"classifier,omitempty"` // classifier weights file for dataset-backed benchmarks

	Optimizer string `json:"optimizer"` // evolution, mayfly
	Budget    int    `json:"budget"`    // evaluations (evolution) or iterations (mayfly)
	PopSize   int    `json:"popSize"`
	Seed      int64  `json:"seed"`

	CheckpointEvery int  `json:"checkpointEvery,omitempty"` // evaluations between checkpoints, 0 = end of run only
	NoConvergence   bool `json:"noConvergence,omitempty"`   // run the full budget even when the cost stalls
}

// Validate checks that the config names a complete problem and optimizer.
func (c RunConfig) Validate() error {
	switch c.Problem {
	case ProblemRecovery:
		if c.TargetPath == "" {
			return &ValidationError{Field: "Config.TargetPath", Reason: "required for recovery runs"}
		}
	case ProblemBenchmark:
		if c.Benchmark == "" {
			return &ValidationError{Field: "Config.Benchmark", Reason: "required for benchmark runs"}
		}
		if c.Instance < 0 {
			return &ValidationError{Field: "Config.Instance", Reason: "cannot be negative"}
		}
	case "":
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	default:
		return &ValidationError{Field: "Config.Problem", Reason: fmt.Sprintf("unknown problem %q", c.Problem)}
	}
	if c.Optimizer == "" {
		return &ValidationError{Field: "Config.Optimizer", Reason: "cannot be empty"}
	}
	if c.Budget <= 0 {
		return &ValidationError{Field: "Config.Budget", Reason: "must be positive"}
	}
	if c.PopSize <= 0 {
		return &ValidationError{Field: "Config.PopSize", Reason: "must be positive"}
	}
	if c.CheckpointEvery < 0 {
		return &ValidationError{Field: "Config.CheckpointEvery", Reason: "cannot be negative"}
	}
	return nil
}

// Checkpoint is the saved best state of a run.
//
// Only the best point is kept, not the optimizer population. A resumed run
// starts a fresh population seeded with BestPoint, so the best cost never
// gets worse across a resume but the trajectory differs from an
// uninterrupted run.
type Checkpoint struct {
	RunID       string            `json:"runId"`
	BestPoint   []float64         `json:"bestPoint"`
	BestCost    float64           `json:"bestCost"`
	InitialCost float64           `json:"initialCost"`
	Evaluations int               `json:"evaluations"`
	Timestamp   time.Time         `json:"timestamp"`
	Config      RunConfig         `json:"config"`
	Descriptors map[string]string `json:"descriptors,omitempty"`
}

// CheckpointInfo is checkpoint metadata without the point itself.
type CheckpointInfo struct {
	RunID       string    `json:"runId"`
	Problem     string    `json:"problem"`
	Benchmark   string    `json:"benchmark,omitempty"`
	BestCost    float64   `json:"bestCost"`
	Evaluations int       `json:"evaluations"`
	Dim         int       `json:"dim"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint stamped with the current time.
func NewCheckpoint(runID string, bestPoint []float64, bestCost, initialCost float64, evaluations int, config RunConfig, descriptors map[string]string) *Checkpoint {
	return &Checkpoint{
		RunID:       runID,
		BestPoint:   bestPoint,
		BestCost:    bestCost,
		InitialCost: initialCost,
		Evaluations: evaluations,
		Timestamp:   time.Now(),
		Config:      config,
		Descriptors: descriptors,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		RunID:       c.RunID,
		Problem:     c.Config.Problem,
		Benchmark:   c.Config.Benchmark,
		BestCost:    c.BestCost,
		Evaluations: c.Evaluations,
		Dim:         len(c.BestPoint),
		Timestamp:   c.Timestamp,
	}
}

// Validate checks that the checkpoint can be resumed from.
// Costs may be negative: untargeted adversarial fitness is a negated loss.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(c.BestPoint) == 0 {
		return &ValidationError{Field: "BestPoint", Reason: "cannot be empty"}
	}
	for i, v := range c.BestPoint {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "BestPoint", Reason: "value " + strconv.Itoa(i) + " is not finite"}
		}
	}
	if math.IsNaN(c.BestCost) || math.IsInf(c.BestCost, 0) {
		return &ValidationError{Field: "BestCost", Reason: "must be finite"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return c.Config.Validate()
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that config optimizes the same objective as the
// checkpoint. Optimizer settings may differ.
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	checks := []struct {
		field            string
		expected, actual string
	}{
		{"Problem", c.Config.Problem, config.Problem},
		{"TargetPath", c.Config.TargetPath, config.TargetPath},
		{"Benchmark", c.Config.Benchmark, config.Benchmark},
		{"Instance", strconv.Itoa(c.Config.Instance), strconv.Itoa(config.Instance)},
		{"DataDir", c.Config.DataDir, config.DataDir},
		{"Classifier", c.Config.Classifier, config.Classifier},
	}
	for _, chk := range checks {
		if chk.expected != chk.actual {
			return &CompatibilityError{Field: chk.field, Expected: chk.expected, Actual: chk.actual}
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
