package cartpole

import (
	"testing"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

func newCartpole(t *testing.T, angle float64, steps int) *Cartpole {
	zero := r1.Interval{Min: 0, Max: 0}
	th := r1.Interval{Min: angle, Max: angle}
	s := env.NewUniformStarter([]r1.Interval{zero, zero, th, zero}, 1)

	c, first, err := New(NewBalance(s, steps, FailAngle), 1.0)
	require.NoError(t, err)
	require.True(t, first.First())
	return c
}

func TestPoleFallsIsTerminal(t *testing.T) {
	c := newCartpole(t, 0.1, 1000)
	assert.Equal(t, 1000, env.MaxEpisodeSteps(c))

	var step ts.TimeStep
	done := false
	for !done {
		var err error
		step, done, err = c.Step(mat.NewVecDense(1, []float64{0}))
		require.NoError(t, err)
	}
	assert.Equal(t, ts.TerminalStateReached, step.EndType())
	assert.Equal(t, 0.0, step.Reward)
	assert.Less(t, step.Number, 1000)
}

func TestStepLimitIsTimeout(t *testing.T) {
	c := newCartpole(t, 0, 3)

	var step ts.TimeStep
	var done bool
	for i := 0; i < 3; i++ {
		var err error
		step, done, err = c.Step(mat.NewVecDense(1, []float64{0}))
		require.NoError(t, err)
		assert.Equal(t, 1.0, step.Reward)
	}
	assert.True(t, done)
	assert.Equal(t, ts.Timeout, step.EndType())
}

func TestActionsPushCart(t *testing.T) {
	c := newCartpole(t, 0, 100)
	step, _, err := c.Step(mat.NewVecDense(1, []float64{5}))
	require.NoError(t, err)
	assert.Greater(t, step.Observation.AtVec(1), 0.0)
	assert.InDelta(t, Dt*ForceMag/(CartMass+PoleMass),
		step.Observation.AtVec(1), 5e-2)

	_, _, err = c.Step(mat.NewVecDense(2, nil))
	assert.Error(t, err)
}
