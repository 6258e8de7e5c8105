package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagebench/internal/report"
	"github.com/cwbudde/imagebench/internal/store"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Render the cost trace of a run as an HTML chart",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output HTML file (default: trace.html in the run directory)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	entries, err := store.ReadTrace(st.BaseDir(), runID)
	if err != nil {
		return err
	}

	title := "Run " + runID
	if cp, err := st.LoadCheckpoint(runID); err == nil {
		if cp.Config.Problem == store.ProblemBenchmark {
			title = fmt.Sprintf("%s: %s #%d (%s)", title, cp.Config.Benchmark, cp.Config.Instance, cp.Config.Optimizer)
		} else {
			title = fmt.Sprintf("%s: %s (%s)", title, cp.Config.Problem, cp.Config.Optimizer)
		}
	}

	out := reportOut
	if out == "" {
		out = filepath.Join(st.RunDir(runID), "trace.html")
	}
	if err := report.WriteTraceFile(out, title, entries); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d trace entries)\n", out, len(entries))
	return nil
}
