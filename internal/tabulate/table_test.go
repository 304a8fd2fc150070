package tabulate

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/cwbudde/resistornet/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProblem(t *testing.T, n int, target float64) *network.Problem {
	t.Helper()
	p, err := network.NewProblem(n, network.SeriesInt, target)
	require.NoError(t, err)
	return p
}

func TestBitCoder(t *testing.T) {
	c := BitCoder{}

	mask := c.Encode([]network.Value{3, 0, 5})
	assert.Equal(t, Mask(0b101001), mask)
	assert.Equal(t, []network.Value{0, 3, 5}, mask.Values())

	// order of values does not matter
	assert.Equal(t, c.Encode([]network.Value{5, 3, 0}), mask)

	require.NoError(t, c.Check(64))
	require.ErrorIs(t, c.Check(65), network.ErrInvalidProblemSize)
	require.ErrorIs(t, c.Check(0), network.ErrInvalidProblemSize)
}

func TestTabulate_EntriesAndOrdering(t *testing.T) {
	p := newProblem(t, 3, 1)
	table := New(3, BitCoder{}, nil)
	require.NoError(t, table.Tabulate(context.Background(), p))

	// 3 singletons, 3 pairs, 1 triple
	assert.Equal(t, 7, table.Entries())

	pair, ok := table.Lookup(BitCoder{}.Encode([]network.Value{0, 1}))
	require.True(t, ok)
	require.Len(t, pair, 2, "a pair has one series and one parallel join")

	triple, ok := table.Lookup(BitCoder{}.Encode([]network.Value{0, 1, 2}))
	require.True(t, ok)
	assert.Len(t, triple, 8, "1, 2 and 3 ohm resistors give 8 distinct networks")

	assert.True(t, sort.SliceIsSorted(triple, func(i, j int) bool {
		return triple[i].Resistance < triple[j].Resistance
	}), "options must be sorted by resistance")

	for _, opt := range triple {
		assert.InDelta(t, opt.Resistance, network.Resistance(p, opt.Network), 1e-12)

		used := opt.Network.Components()
		sort.Ints(used)
		assert.Equal(t, []network.Value{0, 1, 2}, used)
	}

	assert.InDelta(t, 6.0/11.0, triple[0].Resistance, 1e-12)
	assert.InDelta(t, 6.0, triple[len(triple)-1].Resistance, 1e-12)
}

func TestTabulate_GroupSizeLargerThanProblem(t *testing.T) {
	p := newProblem(t, 2, 1)
	table := New(5, nil, nil)
	require.NoError(t, table.Tabulate(context.Background(), p))
	assert.Equal(t, 3, table.Entries())
}

func TestTabulate_Idempotent(t *testing.T) {
	p := newProblem(t, 4, 1)
	table := New(2, nil, nil)
	require.NoError(t, table.Tabulate(context.Background(), p))

	before, _ := table.Lookup(BitCoder{}.Encode([]network.Value{1, 2}))
	require.NoError(t, table.Tabulate(context.Background(), p))
	after, _ := table.Lookup(BitCoder{}.Encode([]network.Value{1, 2}))

	assert.Same(t, before[0].Network, after[0].Network)
}

func TestTabulate_Rejects(t *testing.T) {
	require.Error(t, New(0, nil, nil).Tabulate(context.Background(), newProblem(t, 3, 1)))

	err := New(2, nil, nil).Tabulate(context.Background(), newProblem(t, 65, 1))
	require.ErrorIs(t, err, network.ErrInvalidProblemSize)

	require.Error(t, New(GroupSizeLimit+1, nil, nil).Tabulate(context.Background(), newProblem(t, 3, 1)))
}

func TestTabulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProblem(t, 40, 1)
	table := New(GroupSizeLimit, nil, nil)
	err := table.Tabulate(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, table.Entries())
	assert.Zero(t, table.Options())

	// an interrupted table can be filled later
	small := newProblem(t, 3, 1)
	require.NoError(t, table.Tabulate(context.Background(), small))
	assert.Equal(t, 7, table.Entries())
}

func TestSubsetCount(t *testing.T) {
	tests := []struct {
		n, m int
		want float64
	}{
		{3, 1, 3},
		{3, 2, 6},
		{3, 5, 7},
		{5, 2, 15},
		{64, 4, 679120},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, SubsetCount(tt.n, tt.m), 1e-6, "n=%d m=%d", tt.n, tt.m)
	}
	assert.Greater(t, SubsetCount(40, 12), 5e9)
}

func TestBinarySearch_MatchesExhaustive(t *testing.T) {
	for _, target := range []float64{0.3, 1, 2.2, 2.5, 4, 10} {
		p := newProblem(t, 3, target)
		table := New(3, nil, nil)
		require.NoError(t, table.Tabulate(context.Background(), p))

		values := []network.Value{0, 1, 2}
		root := &network.Node{Op: network.Series, Hidden: values}

		got, err := table.BinarySearch(p, root, root, values)
		require.NoError(t, err)

		root.Children = []*network.Node{got}
		gotCost := network.RelativeError{}.EvaluateCost(p, root)

		opts, _ := table.Lookup(BitCoder{}.Encode(values))
		want := math.Inf(1)
		for _, o := range opts {
			want = math.Min(want, network.RelativeCost(p, o.Resistance))
		}
		assert.InDelta(t, want, gotCost, 1e-12, "target %g", target)
	}
}

func TestLinearSearch_MatchesExhaustive(t *testing.T) {
	for _, target := range []float64{0.5, 2, 3, 5.5, 9} {
		p := newProblem(t, 5, target)
		table := New(3, nil, nil)
		require.NoError(t, table.Tabulate(context.Background(), p))

		va := []network.Value{0, 3}
		vb := []network.Value{1, 2, 4}
		a := &network.Node{Op: network.Parallel, Hidden: va}
		b := &network.Node{Op: network.Parallel, Hidden: vb}
		root := network.NewCombination(network.Series, a, b)

		gotA, gotB, err := table.LinearSearch(p, root, a, b, va, vb)
		require.NoError(t, err)
		a.Children = []*network.Node{gotA}
		b.Children = []*network.Node{gotB}
		gotCost := network.RelativeError{}.EvaluateCost(p, root)

		optsA, _ := table.Lookup(BitCoder{}.Encode(va))
		optsB, _ := table.Lookup(BitCoder{}.Encode(vb))
		want := math.Inf(1)
		for _, oa := range optsA {
			for _, ob := range optsB {
				want = math.Min(want, network.RelativeCost(p, oa.Resistance+ob.Resistance))
			}
		}
		assert.InDelta(t, want, gotCost, 1e-9, "target %g", target)
	}
}

func TestSearch_MissingEntryFailsFast(t *testing.T) {
	p := newProblem(t, 4, 1)
	table := New(2, nil, nil)
	require.NoError(t, table.Tabulate(context.Background(), p))

	values := []network.Value{0, 1, 2}
	root := &network.Node{Hidden: values}

	_, err := table.BinarySearch(p, root, root, values)
	require.ErrorIs(t, err, ErrPrecomputationMissing)

	var missing *MissingEntryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, BitCoder{}.Encode(values), missing.Mask)

	other := &network.Node{Hidden: []network.Value{3}}
	_, _, err = table.LinearSearch(p, root, other, root, []network.Value{3}, values)
	require.ErrorIs(t, err, ErrPrecomputationMissing)
}
