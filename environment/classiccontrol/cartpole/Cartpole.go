// Package cartpole implements the continuous-action Cartpole classic
// control environment
package cartpole

import (
	"fmt"
	"math"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/samuelfneumann/cemrl/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds float64 = 4.8
	AngleBounds    float64 = math.Pi

	MinContinuousAction float64 = -1.0
	MaxContinuousAction float64 = 1.0

	ActionDims      int = 1
	ObservationDims int = 4
)

// Cartpole implements the classic control environment Cartpole with
// continuous actions. In this environment, a pole is attached to a
// cart, which can move horizontally. The agent must keep the pole
// pointing straight up for as long as possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. The position is clipped to
// [-PositionBounds, PositionBounds] and the angle is wrapped to
// [-π, π). Speeds are unbounded.
//
// Actions are 1-dimensional and determine the fraction of ForceMag
// applied to the cart, with negative values pushing left. Actions are
// clipped to [MinContinuousAction, MaxContinuousAction] = [-1, 1].
type Cartpole struct {
	env.Task
	lastStep       ts.TimeStep
	discount       float64
	positionBounds r1.Interval
	forceBounds    r1.Interval
}

// New constructs a new Cartpole environment with the given task,
// along with its first timestep
func New(t env.Task, discount float64) (*Cartpole, ts.TimeStep, error) {
	c := &Cartpole{
		Task:           t,
		discount:       discount,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		forceBounds: r1.Interval{Min: MinContinuousAction,
			Max: MaxContinuousAction},
	}

	firstStep, err := c.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return c, firstStep, nil
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	state := c.Start()
	if err := c.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	startStep := ts.New(ts.First, 0, c.discount, state, 0)
	c.lastStep = startStep

	return startStep, nil
}

// CurrentTimeStep returns the last TimeStep that occurred in the
// environment
func (c *Cartpole) CurrentTimeStep() ts.TimeStep {
	return c.lastStep
}

// MaxEpisodeSteps returns the step limit of the Task, or 0 if the Task
// does not cut episodes off after a fixed number of steps.
func (c *Cartpole) MaxEpisodeSteps() int {
	if limiter, ok := c.Task.(interface{ MaxEpisodeSteps() int }); ok {
		return limiter.MaxEpisodeSteps()
	}
	return 0
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{c.forceBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{c.forceBounds.Max})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	lower := []float64{c.positionBounds.Min, -math.MaxFloat64,
		-AngleBounds, -math.MaxFloat64}
	upper := []float64{c.positionBounds.Max, math.MaxFloat64,
		AngleBounds, math.MaxFloat64}

	return env.NewSpec(shape, env.Observation,
		mat.NewVecDense(ObservationDims, lower),
		mat.NewVecDense(ObservationDims, upper), env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (c *Cartpole) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{c.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep and a bool indicating whether or not the
// episode has ended
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}
	force := floatutils.ClipInterval(a.AtVec(0), c.forceBounds) * ForceMag

	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Euler integration
	x = floatutils.ClipInterval(x+Dt*xDot, c.positionBounds)
	xDot += Dt * xAcc
	th = normalizeAngle(th + Dt*thDot)
	thDot += Dt * thAcc

	newState := mat.NewVecDense(ObservationDims, []float64{x, xDot, th,
		thDot})
	reward := c.GetReward(c.lastStep.Observation, a, newState)
	nextStep := ts.New(ts.Mid, reward, c.discount, newState,
		c.lastStep.Number+1)

	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// validateState ensures that a state observation is valid and between
// the physical bounds of the Cartpole environment
func (c *Cartpole) validateState(obs mat.Vector) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("state should have %v features", ObservationDims)
	}
	if x := obs.AtVec(0); x > c.positionBounds.Max ||
		x < c.positionBounds.Min {
		return fmt.Errorf("position is not within bounds %v",
			c.positionBounds)
	}
	if th := obs.AtVec(2); th > AngleBounds || th < -AngleBounds {
		return fmt.Errorf("angle is not within bounds [%v, %v]",
			-AngleBounds, AngleBounds)
	}
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	return fmt.Sprintf(msg, state.AtVec(0), state.AtVec(1), state.AtVec(2),
		state.AtVec(3))
}

// normalizeAngle wraps th into [-π, π)
func normalizeAngle(th float64) float64 {
	th = math.Mod(th+math.Pi, 2*math.Pi)
	if th < 0 {
		th += 2 * math.Pi
	}
	return th - math.Pi
}
