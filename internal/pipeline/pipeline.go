// Package pipeline turns a job configuration into a finished solve: it
// builds the problem and the subset table, picks the restart strategy and
// applies the run's stopping rules.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/resistornet/internal/bound"
	"github.com/cwbudde/resistornet/internal/config"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/opt"
	"github.com/cwbudde/resistornet/internal/solver"
	"github.com/cwbudde/resistornet/internal/store"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

const (
	StrategyUniform = "uniform"
	StrategyMayfly  = "mayfly"
)

// Options carries the settings that are not part of the persisted job config
type Options struct {
	// Incumbent seeds the best network, e.g. from a checkpoint
	Incumbent *network.Node

	// Observer receives solver notifications; it must be safe for
	// concurrent use when the job runs more than one worker
	Observer solver.Observer

	MayflyIterations int
	MayflyPopulation int

	// Bound names the lower bound reported with results ("range" or none)
	Bound string
}

// Outcome is a finished run
type Outcome struct {
	Problem *network.Problem
	Result  *solver.Result
}

// Run solves the job described by cfg. It returns when ctx is done, the
// time limit expires, the restart budget is spent or, with a patience set,
// the best cost stops improving.
func Run(ctx context.Context, cfg store.JobConfig, opts Options) (*Outcome, error) {
	p, err := cfg.Problem()
	if err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}
	if cfg.GroupSize < 1 || cfg.GroupSize > tabulate.GroupSizeLimit {
		return nil, fmt.Errorf("group size must be between 1 and %d, got %d", tabulate.GroupSizeLimit, cfg.GroupSize)
	}
	if cfg.Workers > config.MaxWorkers {
		return nil, fmt.Errorf("workers must be at most %d, got %d", config.MaxWorkers, cfg.Workers)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyUniform
	}
	if strategy != StrategyUniform && strategy != StrategyMayfly {
		return nil, fmt.Errorf("unknown strategy: %s", strategy)
	}

	if cfg.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeLimit)*time.Second)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	observers := solver.Observers{}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}
	var stop *solver.ConvergenceStop
	if cfg.Patience > 0 {
		stop = solver.NewConvergenceStop(solver.ConvergenceConfig{
			Enabled:   true,
			Patience:  cfg.Patience,
			Threshold: cfg.Threshold,
		}, cancel)
		observers = append(observers, stop)
	}

	// the restart budget is shared between workers
	perWorker := 0
	if cfg.MaxRestarts > 0 {
		perWorker = (cfg.MaxRestarts + workers - 1) / workers
	}

	table := tabulate.New(cfg.GroupSize, nil, nil)
	bounder := bound.New(opts.Bound)
	newSolver := func(seed int64) *solver.LocalSolver {
		return solver.New(table, solver.Options{
			Seed:        seed,
			MaxRestarts: perWorker,
			Incumbent:   opts.Incumbent,
			Bounder:     bounder,
			Observer:    observers,
		})
	}

	run := func(ctx context.Context, s *solver.LocalSolver) (*solver.Result, error) {
		if strategy == StrategyMayfly {
			return s.SolveKeyed(ctx, p, func(seed int64) opt.Optimizer {
				return opt.NewMayfly(opts.MayflyIterations, opts.MayflyPopulation, seed)
			})
		}
		return s.Solve(ctx, p)
	}

	slog.Info("Starting pipeline",
		"values", cfg.Values,
		"series", p.Series,
		"target", cfg.Target,
		"strategy", strategy,
		"workers", workers,
		"max_restarts", cfg.MaxRestarts,
		"time_limit", cfg.TimeLimit,
		"patience", cfg.Patience,
	)

	var res *solver.Result
	if workers == 1 {
		res, err = run(ctx, newSolver(cfg.Seed))
	} else {
		res, err = solver.SolveParallel(ctx, p, table, workers, cfg.Seed, newSolver, run)
	}
	if err != nil {
		return nil, err
	}
	if stop != nil {
		res.Converged = stop.Converged()
	}

	return &Outcome{Problem: p, Result: res}, nil
}
