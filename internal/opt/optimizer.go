// Package opt adapts continuous metaheuristics for use by the network solver.
//
// The solver's restarts are driven by permutations of the values. A
// continuous optimizer searches a vector of random keys instead, and
// PermutationFromKeys turns each key vector into the permutation it ranks.
package opt

import "sort"

// Optimizer minimizes an objective over a box-bounded real vector space
type Optimizer interface {
	// Run minimizes eval over [lower, upper] in dim dimensions and returns
	// the best position and its cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)

	// Name identifies the optimizer in logs and job configs
	Name() string
}

// PermutationFromKeys returns the indices of keys ordered by ascending key.
// Equal keys keep their index order, so the mapping is deterministic.
func PermutationFromKeys(keys []float64) []int {
	perm := make([]int, len(keys))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return keys[perm[a]] < keys[perm[b]]
	})
	return perm
}

// UnitBounds returns [0,1] bounds for dim random keys
func UnitBounds(dim int) (lower, upper []float64) {
	lower = make([]float64, dim)
	upper = make([]float64, dim)
	for i := range upper {
		upper[i] = 1
	}
	return lower, upper
}
