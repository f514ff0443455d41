// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	ts "github.com/samuelfneumann/cemrl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end. If End() returns true,
// the TimeStep argument is modified so that it is the last in the
// episode.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for the transition state, action,
	// nextState
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Matrix) bool
	Min() float64 // Minimum possible reward
	Max() float64 // Maximum possible reward
	RewardSpec() Spec
}

// Environment implements a simualted environment. Actions passed to
// Step are in the environment's own units, as described by ActionSpec.
type Environment interface {
	Reset() (ts.TimeStep, error)
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)
	CurrentTimeStep() ts.TimeStep
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// EpisodeLimiter is an Environment that cuts episodes off after a
// fixed number of steps. A return value <= 0 means no limit is exposed.
type EpisodeLimiter interface {
	Environment
	MaxEpisodeSteps() int
}

// MaxEpisodeSteps returns the step limit exposed by env, or 0 if env
// does not expose one.
func MaxEpisodeSteps(env Environment) int {
	if limiter, ok := env.(EpisodeLimiter); ok {
		return limiter.MaxEpisodeSteps()
	}
	return 0
}
