package network

import "math"

// Evaluator computes the scalar cost of a complete network against a problem.
// Implementations must be pure and must return comparable (non-NaN) values.
type Evaluator interface {
	EvaluateCost(p *Problem, root *Node) float64
}

// EvaluatorFunc adapts a function to the Evaluator interface
type EvaluatorFunc func(p *Problem, root *Node) float64

// EvaluateCost calls f(p, root)
func (f EvaluatorFunc) EvaluateCost(p *Problem, root *Node) float64 {
	return f(p, root)
}

// RelativeError is the default evaluator: |R/T - 1| where R is the
// equivalent resistance of the network and T the problem target.
type RelativeError struct{}

// EvaluateCost implements Evaluator
func (RelativeError) EvaluateCost(p *Problem, root *Node) float64 {
	return RelativeCost(p, Resistance(p, root))
}

// RelativeCost converts a resistance into the relative error against the target.
// An open circuit costs +Inf.
func RelativeCost(p *Problem, r float64) float64 {
	if math.IsInf(r, 1) || math.IsNaN(r) {
		return math.Inf(1)
	}
	return math.Abs(r/p.Target - 1)
}

// Resistance returns the equivalent resistance of the tree rooted at n.
//
// A node with a single child passes the child through. A node without
// children that is not a component is treated as an open circuit.
func Resistance(p *Problem, n *Node) float64 {
	if n == nil {
		return math.Inf(1)
	}
	if n.IsComponent() {
		return p.Magnitude(n.Component)
	}

	switch len(n.Children) {
	case 0:
		return math.Inf(1)
	case 1:
		return Resistance(p, n.Children[0])
	}

	if n.Op == Parallel {
		var conductance float64
		for _, child := range n.Children {
			r := Resistance(p, child)
			if math.IsInf(r, 1) {
				continue // open branch carries no current
			}
			if r == 0 {
				return 0
			}
			conductance += 1 / r
		}
		if conductance == 0 {
			return math.Inf(1)
		}
		return 1 / conductance
	}

	var sum float64
	for _, child := range n.Children {
		sum += Resistance(p, child)
	}
	return sum
}

// Combine returns the resistance of a and b joined with op
func Combine(op Op, a, b float64) float64 {
	if op == Parallel {
		return 1 / (1/a + 1/b)
	}
	return a + b
}
