package network

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Expression renders the tree rooted at n as an infix expression.
// "+" joins series branches and "|" joins parallel branches; leaf groups
// and other single-child nodes are transparent.
func Expression(n *Node) string {
	var b strings.Builder
	writeExpression(&b, n)
	return b.String()
}

func writeExpression(b *strings.Builder, n *Node) {
	if n == nil {
		b.WriteString("open")
		return
	}
	if n.IsComponent() {
		b.WriteString("R")
		b.WriteString(strconv.Itoa(n.Component))
		return
	}
	switch len(n.Children) {
	case 0:
		b.WriteString("open")
		return
	case 1:
		writeExpression(b, n.Children[0])
		return
	}

	sep := " + "
	if n.Op == Parallel {
		sep = " | "
	}
	b.WriteByte('(')
	for i, child := range n.Children {
		if i > 0 {
			b.WriteString(sep)
		}
		writeExpression(b, child)
	}
	b.WriteByte(')')
}

// Summary describes a network against its problem
type Summary struct {
	Expression string  `json:"expression"`
	Resistance float64 `json:"resistance"`
	Target     float64 `json:"target"`
	Cost       float64 `json:"cost"`
	Components int     `json:"components"`
	Groups     int     `json:"groups"`
}

// Summarize evaluates root with the relative-error cost
func Summarize(p *Problem, root *Node) Summary {
	r := Resistance(p, root)
	return Summary{
		Expression: Expression(root),
		Resistance: r,
		Target:     p.Target,
		Cost:       RelativeCost(p, r),
		Components: len(root.Components()),
		Groups:     len(root.LeafGroups()),
	}
}

// Format writes a multi-line human readable summary, each line prefixed with indent
func Format(w io.Writer, p *Problem, root *Node, indent string) error {
	s := Summarize(p, root)

	used := root.Components()
	sort.Ints(used)
	parts := make([]string, len(used))
	for i, v := range used {
		parts[i] = fmt.Sprintf("R%d=%g", v, p.Magnitude(v))
	}

	_, err := fmt.Fprintf(w,
		"%snetwork:    %s\n%sresistance: %.9g ohm\n%starget:     %.9g ohm\n%scost:       %.3e\n%sparts:      %s\n",
		indent, s.Expression,
		indent, s.Resistance,
		indent, s.Target,
		indent, s.Cost,
		indent, strings.Join(parts, " "),
	)
	return err
}
