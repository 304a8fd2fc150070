package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/resistornet/internal/store"
)

var (
	resumeRestarts  int
	resumeTimeLimit time.Duration
	resumeSeed      int64
	resumeWorkers   int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Continue a search from its checkpoint",
	Long: `Loads the checkpoint of a job and continues the search with the stored best
network as the incumbent. The problem is taken from the checkpoint; only the
search budget and seed can be changed. The checkpoint is updated afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	f := resumeCmd.Flags()
	f.IntVar(&resumeRestarts, "restarts", 0, "Restart budget (default: the job's budget)")
	f.DurationVar(&resumeTimeLimit, "time-limit", 0, "Wall clock limit (default: the job's limit)")
	f.Int64Var(&resumeSeed, "seed", 0, "Random seed (default: the job's seed plus one)")
	f.IntVar(&resumeWorkers, "workers", 0, "Parallel solvers (default: the job's workers)")
	f.StringVar(&outPath, "out", "", "Write the best network as JSON to this file")
	f.BoolVar(&writeTrace, "trace", false, "Append to the job's restart trace")
	addStoreFlags(resumeCmd)

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]
	dir, kind := storeSettings(cmd)

	checkpointStore, err := store.Open(kind, dir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	cp, err := checkpointStore.LoadCheckpoint(id)
	checkpointStore.Close()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	jc := cp.Config
	if cmd.Flags().Changed("restarts") {
		jc.MaxRestarts = resumeRestarts
	}
	if cmd.Flags().Changed("time-limit") {
		jc.TimeLimit = int(resumeTimeLimit.Round(time.Second) / time.Second)
	}
	if cmd.Flags().Changed("workers") {
		jc.Workers = resumeWorkers
	}
	// a fresh seed, otherwise the resumed run replays the stored one
	jc.Seed = cp.Config.Seed + 1
	if cmd.Flags().Changed("seed") {
		jc.Seed = resumeSeed
	}

	if err := cp.IsCompatible(jc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Resuming %s from cost %.3e after %d restarts\n", id, cp.BestCost, cp.Restarts)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return execute(ctx, cmd, id, jc, cfg.Solver.Bound, cp.Best, cp.Restarts, true)
}
