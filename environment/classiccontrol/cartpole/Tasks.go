package cartpole

import (
	"math"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	FailAngle float64 = 12 * 2 * math.Pi / 360
)

// Balance implements the classic control Cartpole Balance task. In this
// Task, the goal of the agent is to balance the pole on the cart in
// an upright position for as long as possible.
//
// The reward is +1 for every timestep on which the pole is within the
// fail angle θ of vertical. Episodes terminate when the pole falls
// beyond θ and are cut off after a step limit.
type Balance struct {
	env.Starter
	stepLimiter  *env.StepLimit
	angleLimiter *env.IntervalLimit
	failAngle    float64
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int, failAngle float64) *Balance {
	legalAngles := []r1.Interval{{Min: -failAngle, Max: failAngle}}
	angleLimiter := env.NewIntervalLimit(legalAngles, []int{2},
		ts.TerminalStateReached)

	return &Balance{s, env.NewStepLimit(episodeSteps), angleLimiter,
		failAngle}
}

// End checks if a TimeStep is the last in an episode. If so, it adjusts
// the TimeStep's StepType to timestep.Last and returns true. Otherwise,
// the function does not adjust the TimeStep and returns false.
func (b *Balance) End(t *ts.TimeStep) bool {
	return b.angleLimiter.End(t) || b.stepLimiter.End(t)
}

// MaxEpisodeSteps returns the step limit of the task
func (b *Balance) MaxEpisodeSteps() int {
	return b.stepLimiter.MaxEpisodeSteps()
}

// GetReward returns the reward for the transition into nextState
func (b *Balance) GetReward(_, _, nextState mat.Vector) float64 {
	if math.Abs(nextState.AtVec(2)) <= b.failAngle {
		return 1.0
	}
	return 0.0
}

// AtGoal returns whether the pole is balanced
func (b *Balance) AtGoal(state mat.Matrix) bool {
	return math.Abs(state.At(2, 0)) <= b.failAngle
}

// Min returns the minimum possible reward
func (b *Balance) Min() float64 {
	return 0.0
}

// Max returns the maximum possible reward
func (b *Balance) Max() float64 {
	return 1.0
}

// RewardSpec returns the reward specification for the environment
func (b *Balance) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{b.Min()})
	upperBound := mat.NewVecDense(1, []float64{b.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
