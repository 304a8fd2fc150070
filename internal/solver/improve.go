package solver

import (
	"log/slog"

	"github.com/cwbudde/resistornet/internal/network"
)

// improve hill-climbs over the leaf groups of root, replacing the candidate
// of one group or jointly of two groups per move. It stops at the first move
// that does not strictly lower the cost and keeps that move in place, so the
// final tree may be slightly worse than the one before it. It returns the
// number of moves applied.
func (s *LocalSolver) improve(p *network.Problem, root *network.Node, expandables []*network.Node) (int, error) {
	if len(expandables) == 0 {
		return 0, nil
	}

	cost := s.evaluator.EvaluateCost(p, root)
	moves := 0
	for {
		i := s.rng.Intn(len(expandables))
		j := s.rng.Intn(len(expandables))

		if i == j {
			node := expandables[i]
			node.Children = nil
			candidate, err := s.table.BinarySearch(p, root, node, node.Hidden)
			if err != nil {
				return moves, err
			}
			node.Children = []*network.Node{candidate}
		} else {
			a, b := expandables[i], expandables[j]
			a.Children = nil
			b.Children = nil
			ca, cb, err := s.table.LinearSearch(p, root, a, b, a.Hidden, b.Hidden)
			if err != nil {
				return moves, err
			}
			a.Children = []*network.Node{ca}
			b.Children = []*network.Node{cb}
		}
		moves++

		next := s.evaluator.EvaluateCost(p, root)
		if !(next < cost) {
			slog.Debug("Refinement stopped", "moves", moves, "cost", next, "previous", cost)
			return moves, nil
		}
		cost = next
	}
}
