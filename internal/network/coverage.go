package network

import "fmt"

// CoverageError reports a violation of the assignment invariant: every
// value must be placed exactly once in the tree.
type CoverageError struct {
	Missing    []Value
	Duplicated []Value
	Foreign    []Value
	// Mismatched holds the Hidden sets of leaf groups whose attached
	// candidate does not use exactly those values.
	Mismatched [][]Value
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage violated: missing=%v duplicated=%v out-of-range=%v mismatched-groups=%v",
		e.Missing, e.Duplicated, e.Foreign, e.Mismatched)
}

// CheckCoverage verifies that the tree rooted at root places every value in
// [0, n) exactly once. Unassigned Values, Hidden sets of leaf groups and
// component leaves outside leaf groups all count as placements. A leaf group
// with a candidate attached must have exactly one child whose components are
// a permutation of its Hidden set.
func CheckCoverage(root *Node, n int) error {
	seen := make([]int, n)
	var foreign []Value
	var mismatched [][]Value

	place := func(v Value) {
		if v < 0 || v >= n {
			foreign = append(foreign, v)
			return
		}
		seen[v]++
	}

	stack := []*Node{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == nil {
			continue
		}
		for _, v := range top.Values {
			place(v)
		}
		if top.IsLeafGroup() {
			for _, v := range top.Hidden {
				place(v)
			}
			if len(top.Children) > 0 && !coversExactly(top) {
				mismatched = append(mismatched, append([]Value(nil), top.Hidden...))
			}
			continue
		}
		if top.IsComponent() {
			place(top.Component)
			continue
		}
		stack = append(stack, top.Children...)
	}

	var missing, duplicated []Value
	for v, count := range seen {
		switch {
		case count == 0:
			missing = append(missing, v)
		case count > 1:
			duplicated = append(duplicated, v)
		}
	}
	if len(missing) > 0 || len(duplicated) > 0 || len(foreign) > 0 || len(mismatched) > 0 {
		return &CoverageError{Missing: missing, Duplicated: duplicated, Foreign: foreign, Mismatched: mismatched}
	}
	return nil
}

// coversExactly reports whether the single candidate below a leaf group uses
// each hidden value exactly once and nothing else.
func coversExactly(group *Node) bool {
	if len(group.Children) != 1 || group.Children[0] == nil {
		return false
	}
	used := group.Children[0].Components()
	if len(used) != len(group.Hidden) {
		return false
	}

	remaining := make(map[Value]int, len(group.Hidden))
	for _, v := range group.Hidden {
		remaining[v]++
	}
	for _, v := range used {
		if remaining[v] == 0 {
			return false
		}
		remaining[v]--
	}
	return true
}
