package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/imagebench/internal/runner"
	"github.com/cwbudde/imagebench/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its checkpoint",
	Long: `Continues a run from the best point of its last checkpoint. The stored run
config is used unless --config or flags override it; overrides may change the
optimizer but must keep the same objective. --budget applies to this
invocation only.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resumeConfigPath string

func init() {
	resumeCmd.Flags().StringVar(&resumeConfigPath, "config", "", "YAML run config file")
	addRunConfigFlags(resumeCmd.Flags())
	addMetricsFlag(resumeCmd.Flags())
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	r, err := newRunner(ctx)
	if err != nil {
		return err
	}

	override, err := resumeOverride(cmd, r.Store, runID)
	if err != nil {
		return err
	}
	out, err := r.Resume(ctx, runID, override)
	return reportOutcome(r, out, err)
}

// resumeOverride returns the stored config with --config and changed flags
// applied, or nil when nothing was overridden.
func resumeOverride(cmd *cobra.Command, st store.Store, runID string) (*store.RunConfig, error) {
	flagsChanged := false
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed && f.Name != "metrics-addr" {
			flagsChanged = true
		}
	})
	if !flagsChanged {
		return nil, nil
	}

	cp, err := st.LoadCheckpoint(runID)
	if err != nil {
		return nil, err
	}
	cfg := cp.Config
	if resumeConfigPath != "" {
		if cfg, err = runner.LoadRunConfig(resumeConfigPath, cfg); err != nil {
			return nil, err
		}
	}
	applyRunConfigFlags(cmd.Flags(), &cfg)
	return &cfg, nil
}
