package network

// Value identifies one of the N available resistors by index in [0, N).
// The magnitude is resolved through the problem's component series.
type Value = int

// Op describes how a node combines its children
type Op int

const (
	// Series adds child resistances
	Series Op = iota
	// Parallel adds child conductances
	Parallel
	// Component is a single resistor leaf
	Component
)

// String returns a short name for the combination
func (o Op) String() string {
	switch o {
	case Series:
		return "series"
	case Parallel:
		return "parallel"
	case Component:
		return "component"
	default:
		return "unknown"
	}
}

// Opposite returns the combination used for children created under o.
// Random expansion alternates series and parallel by depth.
func (o Op) Opposite() Op {
	if o == Series {
		return Parallel
	}
	return Series
}

// Node is one vertex of a network tree.
//
// During expansion a node holds unassigned Values until it is either split
// into Children or collapsed into a leaf group. A collapsed leaf group keeps
// its exact value set in Hidden and has a single child: a precomputed
// candidate sub-network that may be shared with the lookup table.
type Node struct {
	Op        Op      `json:"op"`
	Component Value   `json:"component,omitempty"`
	Values    []Value `json:"values,omitempty"`
	Children  []*Node `json:"children,omitempty"`
	Hidden    []Value `json:"hidden,omitempty"`
}

// NewComponent creates a single-resistor leaf
func NewComponent(v Value) *Node {
	return &Node{Op: Component, Component: v}
}

// NewCombination creates a node combining the given children with op
func NewCombination(op Op, children ...*Node) *Node {
	return &Node{Op: op, Children: children}
}

// IsComponent reports whether n is a single-resistor leaf
func (n *Node) IsComponent() bool {
	return n.Op == Component
}

// IsLeafGroup reports whether n was collapsed into a leaf group
func (n *Node) IsLeafGroup() bool {
	return len(n.Hidden) > 0
}

// Clone returns a fully independent deep copy of the tree rooted at n,
// including any candidate sub-networks attached to leaf groups.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	c := &Node{
		Op:        n.Op,
		Component: n.Component,
	}
	if len(n.Values) > 0 {
		c.Values = append([]Value(nil), n.Values...)
	}
	if len(n.Hidden) > 0 {
		c.Hidden = append([]Value(nil), n.Hidden...)
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Components returns the resistor indices used by the tree rooted at n,
// in depth-first order.
func (n *Node) Components() []Value {
	var out []Value
	stack := []*Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == nil {
			continue
		}
		if top.IsComponent() {
			out = append(out, top.Component)
			continue
		}
		for i := len(top.Children) - 1; i >= 0; i-- {
			stack = append(stack, top.Children[i])
		}
	}
	return out
}

// LeafGroups returns every collapsed leaf group in the tree, in depth-first
// order. Candidate sub-networks below a group are not descended into.
func (n *Node) LeafGroups() []*Node {
	var out []*Node
	stack := []*Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == nil {
			continue
		}
		if top.IsLeafGroup() {
			out = append(out, top)
			continue
		}
		for i := len(top.Children) - 1; i >= 0; i-- {
			stack = append(stack, top.Children[i])
		}
	}
	return out
}
