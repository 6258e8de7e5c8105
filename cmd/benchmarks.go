package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagebench/internal/benchmark"
	"github.com/cwbudde/imagebench/internal/runner"
	"github.com/cwbudde/imagebench/internal/store"
)

var (
	showDataset    string
	showClassifier string
	showLimit      int
)

var benchmarksCmd = &cobra.Command{
	Use:   "benchmarks",
	Short: "Inspect benchmark presets",
}

var listBenchmarksCmd = &cobra.Command{
	Use:   "list",
	Short: "List the benchmark presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range benchmark.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var showBenchmarkCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Enumerate the instances of a benchmark preset",
	Long: `Builds the instances of a preset in the order 'run --instance' addresses them
and prints their descriptors.`,
	Args: cobra.ExactArgs(1),
	RunE: runShowBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarksCmd)
	benchmarksCmd.AddCommand(listBenchmarksCmd)
	benchmarksCmd.AddCommand(showBenchmarkCmd)

	showBenchmarkCmd.Flags().StringVar(&showDataset, "dataset", "", "Image folder for the imagenet benchmark")
	showBenchmarkCmd.Flags().StringVar(&showClassifier, "classifier", "", "Linear classifier weights (YAML) for the imagenet benchmark")
	showBenchmarkCmd.Flags().IntVar(&showLimit, "limit", 20, "Stop after N instances (0 = all)")
}

func runShowBenchmark(cmd *cobra.Command, args []string) error {
	seq, err := runner.NewBenchmark(store.RunConfig{
		Problem:    store.ProblemBenchmark,
		Benchmark:  args[0],
		DataDir:    showDataset,
		Classifier: showClassifier,
	}, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tLABEL\tDIM\tDESCRIPTORS")
	fmt.Fprintln(w, "--------\t-----\t---\t-----------")
	for showLimit <= 0 || seq.Yielded() < showLimit {
		fn, err := seq.Next(cmd.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Flush()
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", seq.Yielded()-1, fn.Label(), fn.Domain().Dim(), fn.Descriptors())
	}
	w.Flush()

	fmt.Printf("\nInstances shown: %d\n", seq.Yielded())
	return nil
}
