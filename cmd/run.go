package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/resistornet/internal/config"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/pipeline"
	"github.com/cwbudde/resistornet/internal/solver"
	"github.com/cwbudde/resistornet/internal/store"
)

var (
	solverFlags config.SolverConfig

	outPath    string
	writeTrace bool
	checkpoint bool
	dataDir    string
	storeKind  string
	jobID      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search for a network approximating a target resistance",
	Long: `Runs randomized restarts until the restart budget or time limit is spent,
or until interrupted (Ctrl-C), then prints the best network found.`,
	RunE: runSynthesis,
}

func init() {
	def := config.Default().Solver
	f := runCmd.Flags()
	f.IntVar(&solverFlags.Values, "values", def.Values, "Number of resistors (1-64)")
	f.IntVar(&solverFlags.GroupSize, "group-size", def.GroupSize, "Largest tabulated leaf group")
	f.StringVar(&solverFlags.Series, "series", def.Series, "Component series: INT or E12")
	f.Float64Var(&solverFlags.Target, "target", def.Target, "Target resistance in ohms")
	f.Int64Var(&solverFlags.Seed, "seed", def.Seed, "Random seed (0 = default seed)")
	f.IntVar(&solverFlags.MaxRestarts, "restarts", def.MaxRestarts, "Restart budget (0 = unlimited)")
	f.DurationVar(&solverFlags.TimeLimit, "time-limit", def.TimeLimit, "Wall clock limit, e.g. 30s (0 = none)")
	f.StringVar(&solverFlags.Strategy, "strategy", def.Strategy, "Restart strategy: uniform or mayfly")
	f.IntVar(&solverFlags.Workers, "workers", def.Workers, "Parallel solvers with derived seeds")
	f.IntVar(&solverFlags.Patience, "patience", def.Patience, "Stop after N restarts without significant improvement (0 = off)")
	f.Float64Var(&solverFlags.Threshold, "threshold", def.Threshold, "Relative improvement that resets patience")
	f.StringVar(&solverFlags.Bound, "bound", def.Bound, "Lower bound to report: range or empty")

	f.StringVar(&outPath, "out", "", "Write the best network as JSON to this file")
	f.BoolVar(&writeTrace, "trace", false, "Write a restart trace under <data-dir>/jobs/<job-id>/")
	f.BoolVar(&checkpoint, "checkpoint", false, "Save the best network as a checkpoint")
	addStoreFlags(runCmd)
	f.StringVar(&jobID, "job-id", "", "Job ID for checkpoint and trace (default: random UUID)")

	rootCmd.AddCommand(runCmd)
}

func addStoreFlags(cmd *cobra.Command) {
	def := config.Default().Server
	cmd.Flags().StringVar(&dataDir, "data-dir", def.DataDir, "Base directory for checkpoints and traces")
	cmd.Flags().StringVar(&storeKind, "store", def.Store, "Checkpoint store: fs or badger")
}

// solverConfig merges explicitly set flags over the loaded configuration
func solverConfig(cmd *cobra.Command) config.SolverConfig {
	sc := cfg.Solver
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("values", func() { sc.Values = solverFlags.Values })
	set("group-size", func() { sc.GroupSize = solverFlags.GroupSize })
	set("series", func() { sc.Series = solverFlags.Series })
	set("target", func() { sc.Target = solverFlags.Target })
	set("seed", func() { sc.Seed = solverFlags.Seed })
	set("restarts", func() { sc.MaxRestarts = solverFlags.MaxRestarts })
	set("time-limit", func() { sc.TimeLimit = solverFlags.TimeLimit })
	set("strategy", func() { sc.Strategy = solverFlags.Strategy })
	set("workers", func() { sc.Workers = solverFlags.Workers })
	set("patience", func() { sc.Patience = solverFlags.Patience })
	set("threshold", func() { sc.Threshold = solverFlags.Threshold })
	set("bound", func() { sc.Bound = solverFlags.Bound })
	return sc
}

func storeSettings(cmd *cobra.Command) (dir, kind string) {
	dir, kind = cfg.Server.DataDir, cfg.Server.Store
	if cmd.Flags().Changed("data-dir") {
		dir = dataDir
	}
	if cmd.Flags().Changed("store") {
		kind = storeKind
	}
	return dir, kind
}

func jobConfig(sc config.SolverConfig) store.JobConfig {
	return store.JobConfig{
		Values:      sc.Values,
		GroupSize:   sc.GroupSize,
		Series:      sc.Series,
		Target:      sc.Target,
		Seed:        sc.Seed,
		Strategy:    sc.Strategy,
		MaxRestarts: sc.MaxRestarts,
		TimeLimit:   int(sc.TimeLimit.Round(time.Second) / time.Second),
		Workers:     sc.Workers,
		Patience:    sc.Patience,
		Threshold:   sc.Threshold,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runOutput is the JSON document written by --out
type runOutput struct {
	JobID     string          `json:"jobId"`
	Config    store.JobConfig `json:"config"`
	Summary   network.Summary `json:"summary"`
	Network   *network.Node   `json:"network"`
	Restarts  int             `json:"restarts"`
	Converged bool            `json:"converged,omitempty"`
	Elapsed   float64         `json:"elapsed"`
}

func runSynthesis(cmd *cobra.Command, args []string) error {
	sc := solverConfig(cmd)
	if sc.TimeLimit > 0 && sc.TimeLimit < time.Second {
		return fmt.Errorf("time limit must be at least 1s, got %s", sc.TimeLimit)
	}
	merged := cfg
	merged.Solver = sc
	if err := merged.Validate(); err != nil {
		return err
	}
	jc := jobConfig(sc)

	id := jobID
	if id == "" {
		id = uuid.New().String()
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return execute(ctx, cmd, id, jc, sc.Bound, nil, 0, checkpoint)
}

// execute runs the pipeline and reports the result. prior is the number of
// restarts already spent by a checkpoint being resumed.
func execute(ctx context.Context, cmd *cobra.Command, id string, jc store.JobConfig, boundName string, incumbent *network.Node, prior int, save bool) error {
	dir, kind := storeSettings(cmd)

	observers := solver.Observers{
		solver.NewThrottle(solver.LogObserver{Logger: slog.Default()}, 2, 1),
	}
	if writeTrace {
		tw, err := store.NewTraceWriter(dir, id, incumbent != nil)
		if err != nil {
			return err
		}
		defer tw.Close()
		observers = append(observers, solver.TraceObserver{Writer: tw})
	}

	slog.Info("Starting run", "job_id", id, "values", jc.Values, "target", jc.Target, "series", jc.Series)

	out, err := pipeline.Run(ctx, jc, pipeline.Options{
		Incumbent:        incumbent,
		Observer:         observers,
		MayflyIterations: cfg.Mayfly.Iterations,
		MayflyPopulation: cfg.Mayfly.Population,
		Bound:            boundName,
	})
	if err != nil {
		return err
	}
	res := out.Result
	if res.Best == nil {
		return fmt.Errorf("no network found before the run was stopped")
	}

	slog.Info("Run complete",
		"job_id", id,
		"restarts", res.Restarts,
		"best_cost", res.BestCost,
		"improved", res.Improved,
		"converged", res.Converged,
		"elapsed", res.Elapsed,
	)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Best network after %d restarts (%s):\n", res.Restarts, res.Elapsed.Round(time.Millisecond))
	if err := network.Format(w, out.Problem, res.Best, "  "); err != nil {
		return err
	}

	if outPath != "" {
		doc := runOutput{
			JobID:     id,
			Config:    jc,
			Summary:   network.Summarize(out.Problem, res.Best),
			Network:   res.Best,
			Restarts:  prior + res.Restarts,
			Converged: res.Converged,
			Elapsed:   res.Elapsed.Seconds(),
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(w, "Wrote %s\n", outPath)
	}

	if save {
		checkpointStore, err := store.Open(kind, dir)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer checkpointStore.Close()

		cp := store.NewCheckpoint(id, res.Best, res.BestCost, prior+res.Restarts, jc)
		if err := checkpointStore.SaveCheckpoint(id, cp); err != nil {
			return err
		}
		fmt.Fprintf(w, "Saved checkpoint %s\n", id)
	}
	return nil
}
