package solver

import (
	"context"
	"log/slog"
	"math"

	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/opt"
)

// SolveKeyed lets a continuous optimizer choose the restart permutations.
// Each objective evaluation ranks a vector of random keys in [0,1]^N into a
// permutation and runs one restart from it. Best tracking, observers and
// stopping behave as in Solve; the optimizer is rerun with a fresh seed
// until the solver stops.
func (s *LocalSolver) SolveKeyed(ctx context.Context, p *network.Problem, newOptimizer func(seed int64) opt.Optimizer) (*Result, error) {
	tr, err := s.prepare(ctx, p)
	if err != nil {
		return nil, err
	}

	n := p.Size()
	lower, upper := opt.UnitBounds(n)

	slog.Info("Starting keyed solve",
		"values", n,
		"target", p.Target,
		"group_size", s.table.MaxGroupSize(),
		"seed", s.opts.Seed,
	)

	restarts := 0
	var solveErr error
	objective := func(keys []float64) float64 {
		if solveErr != nil || s.done(ctx, restarts) {
			// mayfly has no stop hook; flat cost keeps it from wandering
			return math.Inf(1)
		}
		cost, err := s.restart(p, tr, restarts, opt.PermutationFromKeys(keys[:n]))
		restarts++
		if err != nil {
			solveErr = err
			return math.Inf(1)
		}
		return cost
	}

	for round := int64(0); !s.done(ctx, restarts); round++ {
		optimizer := newOptimizer(s.rng.Int63())
		before := restarts
		if _, _, err := optimizer.Run(objective, lower, upper, n); err != nil && solveErr == nil {
			return nil, err
		}
		if solveErr != nil {
			return nil, solveErr
		}
		slog.Debug("Optimizer round finished", "optimizer", optimizer.Name(), "round", round, "restarts", restarts-before)
		if restarts == before {
			break
		}
	}

	return s.result(tr, restarts), nil
}
