package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagebench/internal/store"
)

var (
	logLevel string
	dataDir  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imagebench",
	Short: "Image optimization benchmarks for derivative-free optimizers",
	Long: `imagebench runs evolutionary optimizers against image recovery and
adversarial attack objectives, with resumable checkpoints and traces.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for run checkpoints and traces")
}

// openStore opens the run store under --data-dir.
func openStore() (*store.FSStore, error) {
	return store.NewFSStore(dataDir)
}
