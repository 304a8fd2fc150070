package solver

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/resistornet/internal/bound"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

func newProblem(t *testing.T, n int, target float64) *network.Problem {
	t.Helper()
	p, err := network.NewProblem(n, network.SeriesE12, target)
	require.NoError(t, err)
	return p
}

func newTable(t *testing.T, p *network.Problem, m int) *tabulate.Table {
	t.Helper()
	table := tabulate.New(m, nil, nil)
	require.NoError(t, table.Tabulate(context.Background(), p))
	return table
}

// recorder captures notifications for assertions
type recorder struct {
	restarts     []RestartStats
	improvements []Progress
}

func (r *recorder) OnRestart(s RestartStats)  { r.restarts = append(r.restarts, s) }
func (r *recorder) OnImprovement(p Progress) { r.improvements = append(r.improvements, p) }

func TestExpand_CoverageAndGroupSize(t *testing.T) {
	for n := 1; n <= 9; n++ {
		for m := 1; m <= 3; m++ {
			p := newProblem(t, n, 4700)
			table := newTable(t, p, m)

			for seed := int64(1); seed <= 20; seed++ {
				s := New(table, Options{Seed: seed})
				root := &network.Node{Op: network.Series, Values: s.rng.Perm(n)}

				expandables, err := s.expand(root)
				require.NoError(t, err)
				require.NoError(t, network.CheckCoverage(root, n), "n=%d m=%d seed=%d", n, m, seed)

				var hidden []network.Value
				for _, node := range expandables {
					assert.LessOrEqual(t, len(node.Hidden), m)
					assert.Empty(t, node.Values)
					require.Len(t, node.Children, 1)
					hidden = append(hidden, node.Hidden...)
				}
				sort.Ints(hidden)
				want := make([]network.Value, n)
				for i := range want {
					want[i] = i
				}
				assert.Equal(t, want, hidden, "n=%d m=%d seed=%d", n, m, seed)
			}
		}
	}
}

func TestExpand_SingleValue(t *testing.T) {
	p := newProblem(t, 1, 1)
	table := newTable(t, p, 3)
	s := New(table, Options{Seed: 7})

	root := &network.Node{Op: network.Series, Values: []network.Value{0}}
	expandables, err := s.expand(root)
	require.NoError(t, err)

	require.Len(t, expandables, 1)
	assert.Same(t, root, expandables[0])
	assert.Equal(t, []network.Value{0}, root.Hidden)
	require.Len(t, root.Children, 1)
	assert.True(t, root.Children[0].IsComponent())
	assert.Empty(t, root.Children[0].Children)

	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.BestCost, 1e-12)
}

func TestExpand_AttachesTableCandidateByReference(t *testing.T) {
	p := newProblem(t, 2, 1)
	table := newTable(t, p, 2)
	s := New(table, Options{Seed: 3})

	root := &network.Node{Op: network.Series, Values: []network.Value{1, 0}}
	_, err := s.expand(root)
	require.NoError(t, err)

	opts, ok := table.Lookup(table.Coder().Encode([]network.Value{0, 1}))
	require.True(t, ok)

	found := false
	for _, o := range opts {
		if o.Network == root.Children[0] {
			found = true
		}
	}
	assert.True(t, found, "candidate must be shared with the table")
}

func TestImprove_NonIncreasingUntilLastMove(t *testing.T) {
	p := newProblem(t, 9, 12345)
	table := newTable(t, p, 3)

	for seed := int64(1); seed <= 30; seed++ {
		var costs []float64
		record := network.EvaluatorFunc(func(p *network.Problem, root *network.Node) float64 {
			c := network.RelativeError{}.EvaluateCost(p, root)
			costs = append(costs, c)
			return c
		})

		s := New(table, Options{Seed: seed, Evaluator: record})
		root := &network.Node{Op: network.Series, Values: s.rng.Perm(p.Size())}
		expandables, err := s.expand(root)
		require.NoError(t, err)

		moves, err := s.improve(p, root, expandables)
		require.NoError(t, err)

		require.GreaterOrEqual(t, moves, 1)
		require.Len(t, costs, moves+1, "one evaluation before the loop and one per move")
		for k := 1; k < len(costs)-1; k++ {
			assert.Less(t, costs[k], costs[k-1], "seed %d move %d", seed, k)
		}
		// the final move is kept even when it did not improve
		assert.Equal(t, costs[len(costs)-1], record(p, root))
	}
}

// flatTable offers exactly one candidate per subset of at most two values
type flatTable struct {
	coder   tabulate.BitCoder
	options map[tabulate.Mask][]tabulate.Option
}

func newFlatTable(n int) *flatTable {
	ft := &flatTable{options: make(map[tabulate.Mask][]tabulate.Option)}
	for a := 0; a < n; a++ {
		ft.options[ft.coder.Encode([]network.Value{a})] = []tabulate.Option{
			{Resistance: 1, Network: network.NewComponent(a)},
		}
		for b := a + 1; b < n; b++ {
			ft.options[ft.coder.Encode([]network.Value{a, b})] = []tabulate.Option{{
				Resistance: 2,
				Network:    network.NewCombination(network.Series, network.NewComponent(a), network.NewComponent(b)),
			}}
		}
	}
	return ft
}

func (ft *flatTable) Tabulate(context.Context, *network.Problem) error { return nil }
func (ft *flatTable) MaxGroupSize() int                                { return 2 }
func (ft *flatTable) Coder() tabulate.Coder                            { return ft.coder }

func (ft *flatTable) Lookup(mask tabulate.Mask) ([]tabulate.Option, bool) {
	opts, ok := ft.options[mask]
	return opts, ok
}

func (ft *flatTable) BinarySearch(_ *network.Problem, _, _ *network.Node, values []network.Value) (*network.Node, error) {
	return ft.options[ft.coder.Encode(values)][0].Network, nil
}

func (ft *flatTable) LinearSearch(_ *network.Problem, _, _, _ *network.Node, va, vb []network.Value) (*network.Node, *network.Node, error) {
	return ft.options[ft.coder.Encode(va)][0].Network, ft.options[ft.coder.Encode(vb)][0].Network, nil
}

// groupCost charges 1.0 per two-value group and 0.5 per single-value group
func groupCost(_ *network.Problem, root *network.Node) float64 {
	var cost float64
	for _, g := range root.LeafGroups() {
		if len(g.Hidden) == 2 {
			cost += 1.0
		} else {
			cost += 0.5
		}
	}
	return cost
}

func TestImprove_EqualCostOptionsStopAfterOneMove(t *testing.T) {
	p := newProblem(t, 4, 1)
	ft := newFlatTable(4)

	for seed := int64(1); seed <= 50; seed++ {
		s := New(ft, Options{Seed: seed, Evaluator: network.EvaluatorFunc(groupCost)})
		root := &network.Node{Op: network.Series, Values: s.rng.Perm(4)}

		expandables, err := s.expand(root)
		require.NoError(t, err)
		require.NoError(t, network.CheckCoverage(root, 4))
		for _, node := range expandables {
			assert.LessOrEqual(t, len(node.Hidden), 2)
		}

		moves, err := s.improve(p, root, expandables)
		require.NoError(t, err)
		assert.LessOrEqual(t, moves, 1, "seed %d", seed)
	}
}

func TestSolve_MonotonicBest(t *testing.T) {
	p := newProblem(t, 8, 3333)
	table := newTable(t, p, 3)
	rec := &recorder{}

	s := New(table, Options{Seed: 11, MaxRestarts: 200, Observer: rec})
	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, rec.restarts, 200)
	require.NotEmpty(t, rec.improvements)
	assert.Equal(t, 0, rec.improvements[0].Restart)
	assert.Equal(t, rec.restarts[0].Cost, rec.improvements[0].Cost)

	for i := 1; i < len(rec.improvements); i++ {
		assert.Less(t, rec.improvements[i].Cost, rec.improvements[i-1].Cost)
	}
	for i := 1; i < len(rec.restarts); i++ {
		assert.LessOrEqual(t, rec.restarts[i].BestCost, rec.restarts[i-1].BestCost)
	}

	last := rec.improvements[len(rec.improvements)-1]
	assert.Equal(t, last.Cost, res.BestCost)
	assert.Equal(t, len(rec.improvements), res.Improved)
	assert.InDelta(t, res.BestCost, network.RelativeError{}.EvaluateCost(p, res.Best), 1e-15)
	require.NoError(t, network.CheckCoverage(res.Best, p.Size()))
}

func TestSolve_BestIsIndependentCopy(t *testing.T) {
	p := newProblem(t, 6, 100)
	table := newTable(t, p, 2)
	rec := &recorder{}

	res, err := New(table, Options{Seed: 5, MaxRestarts: 30, Observer: rec}).Solve(context.Background(), p)
	require.NoError(t, err)

	for _, g := range res.Best.LeafGroups() {
		opts, _ := table.Lookup(table.Coder().Encode(g.Hidden))
		for _, o := range opts {
			assert.NotSame(t, o.Network, g.Children[0])
		}
	}
}

func TestSolve_DeterministicUnderSeed(t *testing.T) {
	p := newProblem(t, 10, 820)
	table := newTable(t, p, 3)

	run := func() []RestartStats {
		rec := &recorder{}
		_, err := New(table, Options{Seed: 99, MaxRestarts: 50, Observer: rec}).Solve(context.Background(), p)
		require.NoError(t, err)
		return rec.restarts
	}

	assert.Equal(t, run(), run())
}

func TestSolve_ZeroSeedUsesDefault(t *testing.T) {
	table := tabulate.New(2, nil, nil)
	assert.Equal(t, DefaultSeed, New(table, Options{}).Seed())
}

func TestSolve_InvalidProblemSize(t *testing.T) {
	table := tabulate.New(2, nil, nil)
	_, err := New(table, Options{MaxRestarts: 1}).Solve(context.Background(), &network.Problem{Target: 1})
	require.ErrorIs(t, err, network.ErrInvalidProblemSize)
}

// oversizedTable claims a larger group size than it tabulated
type oversizedTable struct {
	*tabulate.Table
}

func (oversizedTable) MaxGroupSize() int { return 3 }

func TestSolve_MissingEntryFailsFast(t *testing.T) {
	p := newProblem(t, 5, 10)
	table := oversizedTable{tabulate.New(2, nil, nil)}
	rec := &recorder{}

	res, err := New(table, Options{Seed: 1, Observer: rec}).Solve(context.Background(), p)
	require.ErrorIs(t, err, tabulate.ErrPrecomputationMissing)
	assert.Nil(t, res)

	var missing *tabulate.MissingEntryError
	require.ErrorAs(t, err, &missing)
	assert.LessOrEqual(t, len(missing.Values), 3)
	assert.Equal(t, table.Coder().Encode(missing.Values), missing.Mask)
}

// stopAfter cancels the run after n restarts
type stopAfter struct {
	NopObserver
	n      int
	cancel context.CancelFunc
}

func (s *stopAfter) OnRestart(st RestartStats) {
	if st.Restart+1 >= s.n {
		s.cancel()
	}
}

func TestSolve_StopsOnContext(t *testing.T) {
	p := newProblem(t, 6, 50)
	table := newTable(t, p, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := New(table, Options{Seed: 2, Observer: &stopAfter{n: 7, cancel: cancel}}).Solve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Restarts)
	assert.NotNil(t, res.Best)
}

func TestSolve_CancelledBeforeStart(t *testing.T) {
	p := newProblem(t, 3, 50)
	table := newTable(t, p, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(table, Options{Seed: 2}).Solve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Restarts)
	assert.Nil(t, res.Best)
	assert.True(t, math.IsInf(res.BestCost, 1))
}

func TestSolve_IncumbentOnlyReplacedByBetter(t *testing.T) {
	p := newProblem(t, 7, 2200)
	table := newTable(t, p, 3)

	first, err := New(table, Options{Seed: 4, MaxRestarts: 100}).Solve(context.Background(), p)
	require.NoError(t, err)

	rec := &recorder{}
	second, err := New(table, Options{
		Seed:        8,
		MaxRestarts: 10,
		Incumbent:   first.Best,
		Observer:    rec,
	}).Solve(context.Background(), p)
	require.NoError(t, err)

	assert.LessOrEqual(t, second.BestCost, first.BestCost)
	for _, imp := range rec.improvements {
		assert.Less(t, imp.Cost, first.BestCost)
	}
}

func TestSolve_RejectsForeignIncumbent(t *testing.T) {
	p := newProblem(t, 3, 10)
	table := newTable(t, p, 2)

	incumbent := network.NewCombination(network.Series, network.NewComponent(0), network.NewComponent(5))
	_, err := New(table, Options{Incumbent: incumbent, MaxRestarts: 1}).Solve(context.Background(), p)

	var coverage *network.CoverageError
	require.ErrorAs(t, err, &coverage)
}

func TestSolve_RejectsIncumbentWithForeignCandidate(t *testing.T) {
	p := newProblem(t, 2, 10)
	table := newTable(t, p, 2)

	incumbent := &network.Node{
		Hidden:   []network.Value{0, 1},
		Children: []*network.Node{network.NewComponent(7)},
	}
	_, err := New(table, Options{Incumbent: incumbent, MaxRestarts: 1}).Solve(context.Background(), p)

	var coverage *network.CoverageError
	require.ErrorAs(t, err, &coverage)
	assert.Len(t, coverage.Mismatched, 1)
}

func TestSolve_ReportsBound(t *testing.T) {
	p := newProblem(t, 2, 1e9)
	table := newTable(t, p, 2)

	res, err := New(table, Options{Seed: 1, MaxRestarts: 3, Bounder: bound.Range{}}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Greater(t, res.Bound, 0.0)
	assert.GreaterOrEqual(t, res.BestCost, res.Bound)
}
