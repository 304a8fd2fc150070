// Package bound provides optional lower bounds on the cost a solver can reach.
// Solvers consult a Bounder for reporting only; no search decision depends on it.
package bound

import (
	"math"

	"github.com/cwbudde/resistornet/internal/network"
)

// Bounder supplies a lower bound on the cost of any complete network for p
type Bounder interface {
	LowerBound(p *network.Problem) float64
}

// Nop is the default Bounder; it never claims more than zero
type Nop struct{}

// LowerBound implements Bounder
func (Nop) LowerBound(*network.Problem) float64 { return 0 }

// Range bounds the cost by the extreme resistances reachable with every
// value in use: all resistors in parallel and all resistors in series.
// Any target between the two extremes yields a bound of zero.
type Range struct{}

// LowerBound implements Bounder
func (Range) LowerBound(p *network.Problem) float64 {
	lo, hi := Extremes(p)
	switch {
	case p.Target < lo:
		return network.RelativeCost(p, lo)
	case p.Target > hi:
		return network.RelativeCost(p, hi)
	default:
		return 0
	}
}

// Extremes returns the all-parallel and all-series resistances of p
func Extremes(p *network.Problem) (lo, hi float64) {
	var conductance float64
	for _, r := range p.Magnitudes {
		hi += r
		conductance += 1 / r
	}
	if conductance == 0 {
		return math.Inf(1), hi
	}
	return 1 / conductance, hi
}

// New returns the bounder selected by name ("range" or anything else for Nop)
func New(name string) Bounder {
	if name == "range" {
		return Range{}
	}
	return Nop{}
}
