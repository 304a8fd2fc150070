package solver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/resistornet/internal/network"
)

// SolveFunc runs one configured solver to completion
type SolveFunc func(ctx context.Context, s *LocalSolver) (*Result, error)

// SolveParallel runs workers independent solvers built by newSolver with
// seeds seed, seed+1, ... and returns the cheapest result. Ties go to the
// lowest worker index. The table is filled once before the workers start
// and only read afterwards.
func SolveParallel(ctx context.Context, p *network.Problem, table Tabulator, workers int, seed int64, newSolver func(seed int64) *LocalSolver, run SolveFunc) (*Result, error) {
	if workers < 1 {
		workers = 1
	}
	if p.Size() == 0 {
		return nil, fmt.Errorf("%w: problem has no values", network.ErrInvalidProblemSize)
	}
	if err := table.Tabulate(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to tabulate subsets: %w", err)
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	if run == nil {
		run = func(ctx context.Context, s *LocalSolver) (*Result, error) {
			return s.Solve(ctx, p)
		}
	}

	results := make([]*Result, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			res, err := run(gctx, newSolver(seed+int64(i)))
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	restarts := 0
	for i, res := range results {
		restarts += res.Restarts
		if res.BestCost < results[best].BestCost {
			best = i
		}
	}

	out := *results[best]
	out.Restarts = restarts
	slog.Info("Parallel solve finished",
		"workers", workers,
		"winner", best,
		"winner_seed", out.Seed,
		"best_cost", out.BestCost,
		"restarts", restarts,
	)
	return &out, nil
}
