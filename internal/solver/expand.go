package solver

import (
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

// expand partitions root's values at random until every branch ends in a
// leaf group of at most m values, each carrying a random candidate from the
// table. The leaf groups are returned in pre-order.
func (s *LocalSolver) expand(root *network.Node) ([]*network.Node, error) {
	m := s.table.MaxGroupSize()
	coder := s.table.Coder()

	var expandables []*network.Node
	stack := []*network.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(node.Values) <= m {
			if err := s.collapse(node, coder); err != nil {
				return nil, err
			}
			expandables = append(expandables, node)
			continue
		}

		// Each value joins an existing child or opens a new one; the chance of
		// another child shrinks as the fan-out grows.
		for _, v := range node.Values {
			i := s.rng.Intn(len(node.Children) + 1)
			if i == len(node.Children) {
				node.Children = append(node.Children, &network.Node{Op: node.Op.Opposite()})
			}
			node.Children[i].Values = append(node.Children[i].Values, v)
		}
		node.Values = nil

		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
	return expandables, nil
}

// collapse turns node into a leaf group and attaches a random candidate
func (s *LocalSolver) collapse(node *network.Node, coder tabulate.Coder) error {
	node.Hidden = node.Values
	node.Values = nil

	mask := coder.Encode(node.Hidden)
	opts, ok := s.table.Lookup(mask)
	if !ok {
		return &tabulate.MissingEntryError{
			Mask:   mask,
			Values: append([]network.Value(nil), node.Hidden...),
		}
	}
	node.Children = []*network.Node{opts[s.rng.Intn(len(opts))].Network}
	return nil
}
