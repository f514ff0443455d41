package evaluation

import (
	"errors"
	"math"
	"testing"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// countdown is an environment whose episodes last a number of steps
// which grows by one each episode. Each step gives a reward equal to
// the first action dimension.
type countdown struct {
	episode int
	current ts.TimeStep
}

func (c *countdown) Reset() (ts.TimeStep, error) {
	c.episode++
	c.current = ts.New(ts.First, 0, 1, mat.NewVecDense(1, nil), 0)
	return c.current, nil
}

func (c *countdown) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	next := ts.New(ts.Mid, a.AtVec(0), 1, mat.NewVecDense(1, nil),
		c.current.Number+1)
	if next.Number >= c.episode {
		next.StepType = ts.Last
	}
	c.current = next
	return next, next.Last(), nil
}

func (c *countdown) CurrentTimeStep() ts.TimeStep { return c.current }

func (c *countdown) DiscountSpec() env.Spec { return c.spec(env.Discount) }

func (c *countdown) ObservationSpec() env.Spec {
	return c.spec(env.Observation)
}

func (c *countdown) ActionSpec() env.Spec { return c.spec(env.Action) }

func (c *countdown) spec(t env.SpecType) env.Spec {
	return env.NewSpec(mat.NewVecDense(1, nil), t,
		mat.NewVecDense(1, []float64{-1}), mat.NewVecDense(1, []float64{1}),
		env.Continuous)
}

type constant float64

func (c constant) Predict(mat.Vector) (*mat.VecDense, error) {
	return mat.NewVecDense(1, []float64{float64(c)}), nil
}

type failing struct{}

func (failing) Predict(mat.Vector) (*mat.VecDense, error) {
	return nil, errors.New("no action")
}

func TestEpisodeReturns(t *testing.T) {
	returns, err := EpisodeReturns(constant(2), &countdown{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, returns)
}

func TestEvaluatePolicy(t *testing.T) {
	mean, std, err := EvaluatePolicy(constant(1), &countdown{}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), std, 1e-12)

	mean, std, err = EvaluatePolicy(constant(1), &countdown{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestEvaluatePolicyErrors(t *testing.T) {
	_, _, err := EvaluatePolicy(constant(1), &countdown{}, 0)
	assert.Error(t, err)

	_, _, err = EvaluatePolicy(failing{}, &countdown{}, 2)
	assert.Error(t, err)
}
