package solver

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// ConvergenceConfig defines when an orchestrated run counts as converged.
// The restart loop itself never stops on convergence; callers cancel its
// context through a ConvergenceStop.
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of restarts without significant improvement
	// of the best cost before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress.
	// Relative improvement = (oldCost - newCost) / oldCost
	Threshold float64
}

// DefaultConvergenceConfig returns sensible defaults for bounded CLI runs
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  2000,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks best-cost history and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new best cost and returns true if convergence is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}

	// An exact match cannot be improved on
	if cost == 0 {
		slog.Info("Exact match found - stopping early", "restarts", len(c.costHistory))
		return true
	}

	if len(c.costHistory) == 1 || math.IsInf(c.lastSignificant, 1) {
		c.lastSignificant = cost
		return false
	}

	relativeImprovement := (c.lastSignificant - cost) / c.lastSignificant
	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("Cost improvement detected",
			"cost", cost,
			"relative_improvement", relativeImprovement,
		)
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the best cost seen so far
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns the full cost history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the current number of updates without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.costHistory = nil
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}

// ConvergenceStop is an Observer that cancels a run once its tracker
// reports convergence. It may be shared by parallel workers.
type ConvergenceStop struct {
	mu        sync.Mutex
	tracker   *ConvergenceTracker
	cancel    context.CancelFunc
	converged atomic.Bool
}

// NewConvergenceStop returns an observer calling cancel on convergence
func NewConvergenceStop(config ConvergenceConfig, cancel context.CancelFunc) *ConvergenceStop {
	return &ConvergenceStop{
		tracker: NewConvergenceTracker(config),
		cancel:  cancel,
	}
}

func (c *ConvergenceStop) OnRestart(s RestartStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.converged.Load() {
		return
	}
	if c.tracker.Update(s.BestCost) {
		c.converged.Store(true)
		c.cancel()
	}
}

func (c *ConvergenceStop) OnImprovement(Progress) {}

// Converged reports whether the stop fired
func (c *ConvergenceStop) Converged() bool {
	return c.converged.Load()
}
