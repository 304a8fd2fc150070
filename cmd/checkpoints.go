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

	"github.com/cwbudde/resistornet/internal/store"
)

var (
	checkpointDataDir   string
	checkpointStoreKind string
	keepLast            int
	olderThanDays       int
	forceClean          bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage search checkpoints",
	Long: `Manage search checkpoints including listing and cleaning old checkpoints.
Checkpoints allow resuming long-running searches from their best network.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long:  `Display all checkpoints with job ID, timestamp, restarts, cost, problem and network.`,
	RunE:  runListCheckpoints,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long: `Delete old checkpoints based on retention policy.
You can specify how many checkpoints to keep per job or delete checkpoints older than N days.`,
	RunE: runCleanCheckpoints,
}

func init() {
	// Add checkpoints command to root
	rootCmd.AddCommand(checkpointsCmd)

	// Add subcommands
	checkpointsCmd.AddCommand(listCheckpointsCmd)
	checkpointsCmd.AddCommand(cleanCheckpointsCmd)

	// Global flags for checkpoints command
	checkpointsCmd.PersistentFlags().StringVar(&checkpointDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	checkpointsCmd.PersistentFlags().StringVar(&checkpointStoreKind, "store", "fs", "Checkpoint store: fs or badger")

	// Clean command flags
	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N checkpoints per job (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete checkpoints older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	st, err := store.Open(checkpointStoreKind, checkpointDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer st.Close()

	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTIMESTAMP\tRESTARTS\tBEST COST\tPROBLEM\tNETWORK\tSIZE")
	fmt.Fprintln(w, "------\t---------\t--------\t---------\t-------\t-------\t----")

	for _, info := range infos {
		sizeStr := "-"
		if checkpointStoreKind != "badger" {
			jobDir := filepath.Join(checkpointDataDir, "jobs", info.JobID)
			if size, err := getDirSize(jobDir); err == nil {
				sizeStr = formatBytes(size)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%.3e\t%d x %s -> %g\t%s\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Restarts,
			info.BestCost,
			info.Values,
			info.Series,
			info.Target,
			info.Expression,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal checkpoints: %d\n", len(infos))
	return nil
}

// shortID truncates a job ID for display
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	// Validate flags
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := store.Open(checkpointStoreKind, checkpointDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer st.Close()

	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints to clean.")
		return nil
	}

	// Determine which checkpoints to delete
	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No checkpoints match deletion criteria.")
		return nil
	}

	// Show what will be deleted
	fmt.Printf("Found %d checkpoint(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%d restarts, %s)\n",
			shortID(info.JobID),
			info.Restarts,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Delete checkpoints
	deleted := 0
	failed := 0
	for _, info := range toDelete {
		err := st.DeleteCheckpoint(info.JobID)
		if err != nil {
			slog.Error("Failed to delete checkpoint", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted checkpoint", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d checkpoint(s), %d failed.\n", deleted, failed)
	return nil
}

// selectCheckpointsForDeletion determines which checkpoints should be deleted based on retention policy
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	var toDelete []store.CheckpointInfo

	// Apply age-based deletion
	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
			}
		}
	}

	// Apply count-based deletion: one checkpoint per job, keep the newest N
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.CheckpointInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		selected := make(map[string]bool, len(toDelete))
		for _, info := range toDelete {
			selected[info.JobID] = true
		}
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.JobID] {
				toDelete = append(toDelete, info)
			}
		}
	}

	return toDelete
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
