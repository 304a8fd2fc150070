package opt

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minMayflyPopulation is the smallest population mayfly v0.1.0 accepts
const minMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// Populations below the library minimum are raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minMayflyPopulation {
		popSize = minMayflyPopulation
	}
	if maxIters < 1 {
		maxIters = 1
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Name implements Optimizer
func (m *MayflyAdapter) Name() string {
	return "mayfly"
}

// Evaluations estimates how many objective calls one Run makes
func (m *MayflyAdapter) Evaluations() int {
	return m.maxIters * m.popSize
}

// Run executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if dim < 1 {
		return nil, 0, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if len(lower) < dim || len(upper) < dim {
		return nil, 0, fmt.Errorf("bounds shorter than dimension %d", dim)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library takes scalar bounds; random keys share one box
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]

	config.Rand = rand.New(rand.NewSource(m.seed))

	slog.Debug("Starting mayfly run", "dim", dim, "iters", m.maxIters, "pop", m.popSize, "seed", m.seed)

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
