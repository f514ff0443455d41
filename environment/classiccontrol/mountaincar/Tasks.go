package mountaincar

import (
	"math"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Commonly used goal position
	GoalPosition float64 = 0.45
)

// Goal implements the classic control task of reaching a goal on
// Mountain Car. Rewards are -1 on each timestep and 0 for the action
// which transitions the car to the goal.
//
// Episodes end after a step limit (a timeout) or when the car reaches
// the goal state (a true terminal state).
type Goal struct {
	env.Starter
	goalEnder *env.IntervalLimit
	stepEnder *env.StepLimit
	goalX     float64 // x position of goal
}

// NewGoal creates and returns a new Goal struct given a Starter, which
// determines the starting states; the maximum number of episode
// steps; and the goal x position.
func NewGoal(s env.Starter, episodeSteps int, goalX float64) *Goal {
	stepEnder := env.NewStepLimit(episodeSteps)

	interval := []r1.Interval{{Min: math.Inf(-1), Max: goalX}}
	positionIndex := []int{0}
	goalEnder := env.NewIntervalLimit(interval, positionIndex,
		ts.TerminalStateReached)
	return &Goal{s, goalEnder, stepEnder, goalX}
}

// AtGoal returns a boolean indicating whether or not the argument state
// is the goal state
func (g *Goal) AtGoal(state mat.Matrix) bool {
	return state.At(0, 0) >= g.goalX
}

// GetReward returns the reward for a given state and action, resulting
// in a given next state.
func (g *Goal) GetReward(_, _, nextState mat.Vector) float64 {
	if nextState.AtVec(0) >= g.goalX {
		return 0.0
	}
	return -1.0
}

// Min returns the minimum attainable reward over all timesteps
func (g *Goal) Min() float64 { return -1.0 }

// Max returns the maximum attainable reward over all timesteps
func (g *Goal) Max() float64 { return 0.0 }

// RewardSpec returns the reward specification of the Task
func (g *Goal) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.Min()})
	upperBound := mat.NewVecDense(1, []float64{g.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Discrete)
}

// End determines if a timestep is the last timestep in the episode,
// checking the goal before the step limit so that reaching the goal on
// the final allowed step counts as termination.
func (g *Goal) End(t *ts.TimeStep) bool {
	if end := g.goalEnder.End(t); end {
		return true
	}
	return g.stepEnder.End(t)
}

// MaxEpisodeSteps returns the step limit of the Task
func (g *Goal) MaxEpisodeSteps() int {
	return g.stepEnder.MaxEpisodeSteps()
}
