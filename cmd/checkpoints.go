package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagebench/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage run checkpoints",
	Long: `Manage run checkpoints including listing and cleaning old runs.
Checkpoints allow resuming long-running optimizations from saved state.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long:  `Display all checkpoints with run ID, problem, timestamp, evaluations, cost and size on disk.`,
	RunE:  runListCheckpoints,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long: `Delete old runs based on a retention policy.
You can keep only the N most recent runs or delete runs older than N days.`,
	RunE: runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(listCheckpointsCmd)
	checkpointsCmd.AddCommand(cleanCheckpointsCmd)

	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	checkpointStore, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPROBLEM\tTIMESTAMP\tEVALUATIONS\tBEST COST\tSIZE")
	fmt.Fprintln(w, "------\t-------\t---------\t-----------\t---------\t----")

	for _, info := range infos {
		size, err := getDirSize(checkpointStore.RunDir(info.RunID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		problem := info.Problem
		if info.Benchmark != "" {
			problem += "/" + info.Benchmark
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.6f\t%s\n",
			shortID(info.RunID),
			problem,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Evaluations,
			info.BestCost,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal checkpoints: %d\n", len(infos))
	return nil
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	checkpointStore, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints to clean.")
		return nil
	}

	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Println("No checkpoints match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d checkpoint(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%d evaluations, %s)\n",
			shortID(info.RunID),
			info.Evaluations,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := checkpointStore.DeleteCheckpoint(info.RunID); err != nil {
			slog.Error("Failed to delete checkpoint", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted checkpoint", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d checkpoint(s), %d failed.\n", deleted, failed)
	return nil
}

// selectCheckpointsForDeletion applies the retention policy: runs older than
// olderThanDays, plus all but the keepLast most recent runs.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	var toDelete []store.CheckpointInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.CheckpointInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
