//go:build gym

// Package gym provides access to OpenAI Gym continuous-control
// environments through the GoGym bindings, found at
// https://github.com/samuelfneumann/GoGym.
//
// The package requires a Python installation with gym and is only
// built with the "gym" build tag.
package gym

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"
)

// GymEnv implements access to an OpenAI Gym environment using GoGym.
// Episodes are additionally cut off after maxEpisodeSteps steps when
// maxEpisodeSteps > 0.
type GymEnv struct {
	gogym.Environment

	currentStep     ts.TimeStep
	discount        float64
	maxEpisodeSteps int
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite.
func New(name string, discount float64, seed uint64,
	maxEpisodeSteps int) (*GymEnv, ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment: %v", err)
	}
	goGymEnv.Seed(int(seed))

	gymEnv := &GymEnv{
		Environment:     goGymEnv,
		discount:        discount,
		maxEpisodeSteps: maxEpisodeSteps,
	}

	t, err := gymEnv.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return gymEnv, t, nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, toVecDense(obs),
		g.currentStep.Number+1)
	if done {
		t.StepType = ts.Last
		t.SetEnd(ts.TerminalStateReached)
	}
	if g.maxEpisodeSteps > 0 && t.Number >= g.maxEpisodeSteps {
		t.StepType = ts.Last
		t.SetEnd(ts.Timeout)
	}
	g.currentStep = t

	return t, t.Last(), nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, toVecDense(obs), 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// MaxEpisodeSteps returns the episode cutoff of the environment
func (g *GymEnv) MaxEpisodeSteps() int {
	return g.maxEpisodeSteps
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	low, high := bounds(g.ObservationSpace())
	shape := mat.NewVecDense(low.Len(), nil)

	return env.NewSpec(shape, env.Observation, low, high, env.Continuous)
}

// ActionSpec returns the action specification of the environment.
// Only continuous action spaces are supported.
func (g *GymEnv) ActionSpec() env.Spec {
	space := g.ActionSpace()
	if _, ok := space.(*gogym.BoxSpace); !ok {
		panic("actionSpec: package gym supports only continuous actions")
	}

	low, high := bounds(space)
	shape := mat.NewVecDense(low.Len(), nil)

	return env.NewSpec(shape, env.Action, low, high, env.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, []float64{g.discount})

	return env.NewSpec(shape, env.Discount, low, low, env.Continuous)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

// gymSpace is the subset of a GoGym space used by GymEnv
type gymSpace interface {
	Low() []*mat.VecDense
	High() []*mat.VecDense
}

// bounds returns the lower and upper bounds of a GoGym space
func bounds(space gymSpace) (*mat.VecDense, *mat.VecDense) {
	switch space.(type) {
	case *gogym.BoxSpace, *gogym.DiscreteSpace:
		return space.Low()[0], space.High()[0]
	default:
		panic("bounds: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}
}

func toVecDense(v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}
