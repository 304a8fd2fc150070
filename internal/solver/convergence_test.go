package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvergenceTracker(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.01})

	assert.False(t, tracker.Update(1.0))
	assert.False(t, tracker.Update(0.5), "significant improvement")
	assert.False(t, tracker.Update(0.499))
	assert.False(t, tracker.Update(0.499))
	assert.True(t, tracker.Update(0.498), "third stale update exhausts patience")

	assert.Equal(t, 0.498, tracker.BestCost())
	assert.Equal(t, 3, tracker.StaleCount())
	assert.Len(t, tracker.History(), 5)

	tracker.Reset()
	assert.Empty(t, tracker.History())
	assert.Equal(t, 0, tracker.StaleCount())
}

func TestConvergenceTracker_ExactMatch(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	assert.False(t, tracker.Update(0.2))
	assert.True(t, tracker.Update(0))
}

func TestConvergenceTracker_Disabled(t *testing.T) {
	tracker := NewConvergenceTracker(DisabledConvergenceConfig())
	for i := 0; i < 100; i++ {
		assert.False(t, tracker.Update(1))
	}
}

func TestConvergenceStopCancelsSolve(t *testing.T) {
	p := newProblem(t, 5, 3900)
	table := newTable(t, p, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := NewConvergenceStop(ConvergenceConfig{Enabled: true, Patience: 10, Threshold: 0.5}, cancel)
	res, err := New(table, Options{Seed: 6, MaxRestarts: 100000, Observer: stop}).Solve(ctx, p)
	require.NoError(t, err)

	assert.True(t, stop.Converged())
	assert.Less(t, res.Restarts, 100000)
}
