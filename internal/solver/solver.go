// Package solver implements the randomized local search that synthesizes
// resistor networks: random expansion into leaf groups, table-driven hill
// climbing over those groups, and a best-of-restarts outer loop.
package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/resistornet/internal/bound"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

// DefaultSeed replaces a zero seed so unseeded runs stay reproducible
const DefaultSeed int64 = 1

// Tabulator is the subset table the solver expands into and refines against.
// *tabulate.Table satisfies it.
type Tabulator interface {
	Tabulate(ctx context.Context, p *network.Problem) error
	MaxGroupSize() int
	Coder() tabulate.Coder
	Lookup(mask tabulate.Mask) ([]tabulate.Option, bool)
	BinarySearch(p *network.Problem, root, node *network.Node, values []network.Value) (*network.Node, error)
	LinearSearch(p *network.Problem, root, a, b *network.Node, va, vb []network.Value) (*network.Node, *network.Node, error)
}

// Options configures a LocalSolver
type Options struct {
	// Seed initializes the solver's random source. Zero selects DefaultSeed.
	Seed int64

	// MaxRestarts stops the loop after that many restarts. Zero runs until
	// the context is done.
	MaxRestarts int

	// Incumbent seeds the best network, e.g. from a checkpoint. It is only
	// replaced by a strictly cheaper network.
	Incumbent *network.Node

	Evaluator network.Evaluator
	Bounder   bound.Bounder
	Observer  Observer
}

// Result is the outcome of a solve
type Result struct {
	Best      *network.Node `json:"best"`
	BestCost  float64       `json:"best_cost"`
	Restarts  int           `json:"restarts"`
	Improved  int           `json:"improvements"`
	Bound     float64       `json:"lower_bound"`
	Elapsed   time.Duration `json:"elapsed"`
	Seed      int64         `json:"seed"`
	Converged bool          `json:"converged,omitempty"`
}

// LocalSolver runs the restart loop for one problem at a time. It is not
// safe for concurrent use; SolveParallel runs one solver per worker.
type LocalSolver struct {
	table     Tabulator
	evaluator network.Evaluator
	bounder   bound.Bounder
	observer  Observer
	opts      Options
	rng       *rand.Rand
}

// New creates a solver over table
func New(table Tabulator, opts Options) *LocalSolver {
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	s := &LocalSolver{
		table:     table,
		evaluator: opts.Evaluator,
		bounder:   opts.Bounder,
		observer:  opts.Observer,
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
	if s.evaluator == nil {
		s.evaluator = network.RelativeError{}
	}
	if s.bounder == nil {
		s.bounder = bound.Nop{}
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	return s
}

// Seed returns the effective seed
func (s *LocalSolver) Seed() int64 {
	return s.opts.Seed
}

// tracker holds the best network across restarts
type tracker struct {
	best     *network.Node
	bestCost float64
	improved int
	bound    float64
	start    time.Time
}

// prepare validates p, fills the table and seeds the tracker
func (s *LocalSolver) prepare(ctx context.Context, p *network.Problem) (*tracker, error) {
	if p.Size() == 0 {
		return nil, fmt.Errorf("%w: problem has no values", network.ErrInvalidProblemSize)
	}
	if err := s.table.Tabulate(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to tabulate subsets: %w", err)
	}

	tr := &tracker{
		bestCost: math.Inf(1),
		bound:    s.bounder.LowerBound(p),
		start:    time.Now(),
	}
	if s.opts.Incumbent != nil {
		if err := network.CheckCoverage(s.opts.Incumbent, p.Size()); err != nil {
			return nil, fmt.Errorf("incumbent does not match problem: %w", err)
		}
		tr.best = s.opts.Incumbent.Clone()
		tr.bestCost = s.evaluator.EvaluateCost(p, tr.best)
	}
	return tr, nil
}

// Solve runs restarts until ctx is done or MaxRestarts is reached. Stopping
// is not an error: the best network found so far is returned.
func (s *LocalSolver) Solve(ctx context.Context, p *network.Problem) (*Result, error) {
	tr, err := s.prepare(ctx, p)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting solve",
		"values", p.Size(),
		"series", p.Series,
		"target", p.Target,
		"group_size", s.table.MaxGroupSize(),
		"seed", s.opts.Seed,
		"max_restarts", s.opts.MaxRestarts,
	)

	restarts := 0
	for !s.done(ctx, restarts) {
		if _, err := s.restart(p, tr, restarts, s.rng.Perm(p.Size())); err != nil {
			return nil, err
		}
		restarts++
	}

	return s.result(tr, restarts), nil
}

func (s *LocalSolver) done(ctx context.Context, restarts int) bool {
	if s.opts.MaxRestarts > 0 && restarts >= s.opts.MaxRestarts {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// restart builds, refines and scores one candidate from perm, promoting it
// if it beats the best so far. It returns the candidate's cost.
func (s *LocalSolver) restart(p *network.Problem, tr *tracker, index int, perm []int) (float64, error) {
	values := make([]network.Value, len(perm))
	copy(values, perm)
	root := &network.Node{Op: network.Series, Values: values}

	expandables, err := s.expand(root)
	if err != nil {
		return 0, err
	}
	moves, err := s.improve(p, root, expandables)
	if err != nil {
		return 0, err
	}

	cost := s.evaluator.EvaluateCost(p, root)
	if tr.best == nil || cost < tr.bestCost {
		tr.best = root.Clone()
		tr.bestCost = cost
		tr.improved++
		s.observer.OnImprovement(Progress{
			Restart: index,
			Cost:    cost,
			Elapsed: time.Since(tr.start),
			Best:    tr.best,
			Problem: p,
			Bound:   tr.bound,
		})
	}

	s.observer.OnRestart(RestartStats{
		Restart:  index,
		Cost:     cost,
		BestCost: tr.bestCost,
		Moves:    moves,
		Groups:   len(expandables),
	})
	return cost, nil
}

func (s *LocalSolver) result(tr *tracker, restarts int) *Result {
	slog.Info("Solve finished",
		"restarts", restarts,
		"improvements", tr.improved,
		"best_cost", tr.bestCost,
		"elapsed", time.Since(tr.start),
	)
	return &Result{
		Best:     tr.best,
		BestCost: tr.bestCost,
		Restarts: restarts,
		Improved: tr.improved,
		Bound:    tr.bound,
		Elapsed:  time.Since(tr.start),
		Seed:     s.opts.Seed,
	}
}
