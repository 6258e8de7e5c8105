package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/imagebench/internal/metrics"
	"github.com/cwbudde/imagebench/internal/runner"
	"github.com/cwbudde/imagebench/internal/store"
)

var (
	configPath      string
	writeConfigPath string
	metricsAddr     string

	problem         string
	targetPath      string
	benchmarkName   string
	instance        int
	datasetDir      string
	classifierPath  string
	optimizerName   string
	budget          int
	popSize         int
	seed            int64
	checkpointEvery int
	noConvergence   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization",
	Long: `Runs an optimizer against an image recovery target or a benchmark instance.
Settings come from --config (YAML) with flags taking precedence. The run
checkpoint, trace and images are written under --data-dir.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run config file")
	runCmd.Flags().StringVar(&writeConfigPath, "write-config", "", "Write the effective run config to this file and exit")
	addRunConfigFlags(runCmd.Flags())
	addMetricsFlag(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func addRunConfigFlags(fs *pflag.FlagSet) {
	defaults := runner.DefaultRunConfig()
	fs.StringVar(&problem, "problem", defaults.Problem, "Problem: recovery or benchmark")
	fs.StringVar(&targetPath, "target", "", "Target image for the recovery problem")
	fs.StringVar(&benchmarkName, "benchmark", "", "Benchmark preset (see 'benchmarks list')")
	fs.IntVar(&instance, "instance", 0, "Zero-based index into the benchmark sequence")
	fs.StringVar(&datasetDir, "dataset", "", "Image folder for the imagenet benchmark (one subfolder per class)")
	fs.StringVar(&classifierPath, "classifier", "", "Linear classifier weights (YAML) for the imagenet benchmark")
	fs.StringVar(&optimizerName, "optimizer", defaults.Optimizer, "Optimizer: evolution or mayfly")
	fs.IntVar(&budget, "budget", defaults.Budget, "Evaluations (evolution) or iterations (mayfly)")
	fs.IntVar(&popSize, "pop", defaults.PopSize, "Population size")
	fs.Int64Var(&seed, "seed", defaults.Seed, "Random seed")
	fs.IntVar(&checkpointEvery, "checkpoint-every", 0, "Evaluations between checkpoints (0 = end of run only)")
	fs.BoolVar(&noConvergence, "no-convergence", false, "Spend the whole budget instead of stopping when the cost stalls (evolution)")
}

func addMetricsFlag(fs *pflag.FlagSet) {
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
}

// applyRunConfigFlags copies the flags set on the command line into cfg.
func applyRunConfigFlags(fs *pflag.FlagSet, cfg *store.RunConfig) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("problem", func() { cfg.Problem = problem })
	set("target", func() { cfg.TargetPath = targetPath })
	set("benchmark", func() { cfg.Benchmark = benchmarkName })
	set("instance", func() { cfg.Instance = instance })
	set("dataset", func() { cfg.DataDir = datasetDir })
	set("classifier", func() { cfg.Classifier = classifierPath })
	set("optimizer", func() { cfg.Optimizer = optimizerName })
	set("budget", func() { cfg.Budget = budget })
	set("pop", func() { cfg.PopSize = popSize })
	set("seed", func() { cfg.Seed = seed })
	set("checkpoint-every", func() { cfg.CheckpointEvery = checkpointEvery })
	set("no-convergence", func() { cfg.NoConvergence = noConvergence })
}

// newRunner opens the store and, when --metrics-addr is set, starts the
// metrics endpoint for the lifetime of ctx.
func newRunner(ctx context.Context) (*runner.Runner, error) {
	st, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	r := &runner.Runner{Store: st}
	if metricsAddr == "" {
		return r, nil
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	r.Metrics = collector
	go func() {
		if err := metrics.Serve(ctx, metricsAddr, reg); err != nil {
			slog.Error("Metrics server failed", "addr", metricsAddr, "error", err)
		}
	}()
	return r, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so runs can save a final
// checkpoint before exiting.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg := runner.DefaultRunConfig()
	if configPath != "" {
		loaded, err := runner.LoadRunConfig(configPath, cfg)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyRunConfigFlags(cmd.Flags(), &cfg)

	if writeConfigPath != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := runner.WriteRunConfig(writeConfigPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", writeConfigPath)
		return nil
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	r, err := newRunner(ctx)
	if err != nil {
		return err
	}
	out, err := r.Start(ctx, cfg)
	return reportOutcome(r, out, err)
}

// reportOutcome prints the result of a run. An interrupted run is not an
// error: its checkpoint can be resumed.
func reportOutcome(r *runner.Runner, out *runner.Outcome, err error) error {
	if out == nil {
		return err
	}
	cp := out.Checkpoint
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Printf("Interrupted run %s after %d evaluations (best cost %.4f)\n", out.RunID, cp.Evaluations, cp.BestCost)
		fmt.Printf("Resume with: imagebench resume %s\n", out.RunID)
		return nil
	}

	fmt.Printf("Run %s: cost %.4f -> %.4f after %d evaluations (%d failed)\n",
		out.RunID, cp.InitialCost, cp.BestCost, cp.Evaluations, out.Result.Failures)
	fmt.Printf("Artifacts in %s\n", r.Store.RunDir(out.RunID))
	return nil
}
