package tabulate

import (
	"math"
	"sort"

	"github.com/cwbudde/resistornet/internal/network"
)

// BinarySearch picks the option for node's value set that gives root the
// lowest cost, with the rest of the tree held fixed. The node's children are
// overwritten while probing; the caller attaches the returned candidate.
func (t *Table) BinarySearch(p *network.Problem, root, node *network.Node, values []network.Value) (*network.Node, error) {
	opts, err := t.entry(values)
	if err != nil {
		return nil, err
	}

	attach := func(i int) {
		node.Children = []*network.Node{opts[i].Network}
	}

	crossing := sort.Search(len(opts), func(i int) bool {
		attach(i)
		return network.Resistance(p, root) >= p.Target
	})

	best := -1
	bestCost := math.Inf(1)
	for _, i := range [...]int{crossing - 1, crossing} {
		if i < 0 || i >= len(opts) {
			continue
		}
		attach(i)
		cost := t.evaluator.EvaluateCost(p, root)
		if best < 0 || cost < bestCost {
			best, bestCost = i, cost
		}
	}
	return opts[best].Network, nil
}

// LinearSearch jointly picks options for two distinct nodes, walking the
// first node's options upwards and the second's downwards. It returns the
// lowest-cost pair seen on the walk.
func (t *Table) LinearSearch(p *network.Problem, root, a, b *network.Node, va, vb []network.Value) (*network.Node, *network.Node, error) {
	optsA, err := t.entry(va)
	if err != nil {
		return nil, nil, err
	}
	optsB, err := t.entry(vb)
	if err != nil {
		return nil, nil, err
	}

	bestA, bestB := -1, -1
	bestCost := math.Inf(1)

	i, j := 0, len(optsB)-1
	for i < len(optsA) && j >= 0 {
		a.Children = []*network.Node{optsA[i].Network}
		b.Children = []*network.Node{optsB[j].Network}

		cost := t.evaluator.EvaluateCost(p, root)
		if bestA < 0 || cost < bestCost {
			bestA, bestB, bestCost = i, j, cost
		}

		r := network.Resistance(p, root)
		switch {
		case r < p.Target:
			i++
		case r > p.Target:
			j--
		default:
			return optsA[i].Network, optsB[j].Network, nil
		}
	}
	return optsA[bestA].Network, optsB[bestB].Network, nil
}
