package solver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"acoustic1d/internal/solver"
)

func TestSchedulerFiresOncePerCrossing(t *testing.T) {
	s := solver.NewScheduler(0, 0.25)
	assert.Equal(t, 0, s.Initial())
	assert.Equal(t, 0.25, s.NextOutput())

	assert.False(t, s.Due(0.25), "due only strictly past the output time")
	assert.True(t, s.Due(0.3))
	assert.Equal(t, 1, s.Fire())
	assert.Equal(t, 0.5, s.NextOutput())
	assert.Equal(t, 2, s.Frame())
}

func TestSchedulerDoesNotBackfill(t *testing.T) {
	s := solver.NewScheduler(0, 0.1)
	s.Initial()

	// One large step jumps over three thresholds.
	assert.True(t, s.Due(0.35))
	assert.Equal(t, 1, s.Fire())
	assert.InDelta(t, 0.2, s.NextOutput(), 1e-12, "schedule moves one interval, not to t")
	assert.True(t, s.Due(0.36), "still behind, fires again on the next step")
	assert.Equal(t, 2, s.Fire())
}

func TestSchedulerReached(t *testing.T) {
	s := solver.NewScheduler(0, 1.0/16)
	s.Initial()
	for i := 0; i < 15; i++ {
		s.Fire()
	}
	assert.False(t, s.Due(1))
	assert.True(t, s.Reached(1))
	assert.True(t, s.Reached(1-1e-12))
	assert.False(t, s.Reached(0.99))
	assert.Equal(t, 1.0/16, s.Interval())
}
