// Package pendulum implements the pendulum classic control environment
package pendulum

import (
	"fmt"
	"math"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/samuelfneumann/cemrl/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	MaxContinuousAction float64 = TorqueBound
	MinContinuousAction float64 = -MaxContinuousAction

	dt              float64 = 0.05
	Gravity         float64 = 9.8
	Mass            float64 = 1.0
	Length          float64 = 1.0
	ActionDims      int     = 1
	ObservationDims int     = 2
)

// Pendulum implements the classic control environment Pendulum. In this
// environment, a pendulum is attached to a fixed base. An agent can
// swing the pendulum back and forth, but the swinging force/torque is
// underpowered. In order to be able to swing the pendulum straight up,
// it must first be rocked back and forth, using the momentum to
// gradually climb higher until the pendulum can point straight up or
// rotate fully around its fixed base.
//
// State features consist of the angle of the pendulum from the positive
// y-axis and the angular velocity of the pendulum. Both state features
// are bounded by the AngleBound and SpeedBound constants in this
// package. The angular velocity is clipped between [-SpeedBound,
// SpeedBound]. Angles are normalized to stay within [-π, π].
//
// Actions are continuous and 1-dimensional. Actions determine the
// torque to apply to the pendulum at its fixed base and are clipped to
// [MinContinuousAction, MaxContinuousAction] = [-2, 2].
//
// Pendulum implements the environment.Environment interface
type Pendulum struct {
	env.Task
	dt           float64
	gravity      float64
	mass         float64
	length       float64
	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     ts.TimeStep
	discount     float64
}

// New creates and returns a new Pendulum environment with the given
// task, along with its first timestep
func New(t env.Task, discount float64) (*Pendulum, ts.TimeStep, error) {
	angleBounds := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speedBounds := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	torqueBounds := r1.Interval{Min: -TorqueBound, Max: TorqueBound}

	pendulum := &Pendulum{
		Task:         t,
		dt:           dt,
		gravity:      Gravity,
		mass:         Mass,
		length:       Length,
		angleBounds:  angleBounds,
		speedBounds:  speedBounds,
		torqueBounds: torqueBounds,
		discount:     discount,
	}

	firstStep, err := pendulum.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	return pendulum, firstStep, nil
}

// CurrentTimeStep returns the last TimeStep that occurred in the
// environment
func (p *Pendulum) CurrentTimeStep() ts.TimeStep {
	return p.lastStep
}

// Reset resets the environment and returns a starting state drawn from the
// Starter
func (p *Pendulum) Reset() (ts.TimeStep, error) {
	state := p.Start()
	if err := validateState(state, p.angleBounds, p.speedBounds); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	startStep := ts.New(ts.First, 0, p.discount, state, 0)
	p.lastStep = startStep

	return startStep, nil
}

// Step takes one environmental step given action a and returns the next
// timestep and a bool indicating whether or not the episode has ended.
// Actions outside the legal range of [-2, 2] are clipped to stay within
// this range.
func (p *Pendulum) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if action.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	torque := floatutils.ClipInterval(action.AtVec(0), p.torqueBounds)
	nextState := p.nextState(p.lastStep, torque)

	reward := p.GetReward(p.lastStep.Observation, action, nextState)
	nextStep := ts.New(ts.Mid, reward, p.discount, nextState,
		p.lastStep.Number+1)

	// Check if the step is the last in the episode and adjust step type
	// if necessary
	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// MaxEpisodeSteps returns the step limit of the Task, or 0 if the Task
// does not cut episodes off after a fixed number of steps.
func (p *Pendulum) MaxEpisodeSteps() int {
	if limiter, ok := p.Task.(interface{ MaxEpisodeSteps() int }); ok {
		return limiter.MaxEpisodeSteps()
	}
	return 0
}

// nextState computes the next state of the environment given a timestep and
// an amount of torque to apply to the fixed base of the pendulum.
func (p *Pendulum) nextState(t ts.TimeStep, torque float64) *mat.VecDense {
	obs := t.Observation
	th, thdot := obs.AtVec(0), obs.AtVec(1)

	newthdot := thdot + (-3*p.gravity/(2*p.length)*math.Sin(th+math.Pi)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*p.dt

	newth := th + (newthdot * p.dt)

	// Clip the angular velocity
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)

	return mat.NewVecDense(ObservationDims, []float64{normalizeAngle(newth),
		newthdot})
}

// ActionSpec returns the action specification of the environment
func (p *Pendulum) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)

	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (p *Pendulum) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{p.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// ObservationSpec returns the observation specification of the environment
func (p *Pendulum) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	minObs := []float64{p.angleBounds.Min, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, minObs)

	maxObs := []float64{p.angleBounds.Max, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, maxObs)

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// String converts the environment to a string representation
func (p *Pendulum) String() string {
	str := "Pendulum  |  theta: %v  |  theta dot: %v"
	theta := p.lastStep.Observation.AtVec(0)
	thetadot := p.lastStep.Observation.AtVec(1)

	return fmt.Sprintf(str, theta, thetadot)
}

// normalizeAngle wraps th into [-π, π)
func normalizeAngle(th float64) float64 {
	th = math.Mod(th+math.Pi, 2*math.Pi)
	if th < 0 {
		th += 2 * math.Pi
	}
	return th - math.Pi
}

// validateState validates the state to ensure that the angle and angular
// velocity are within the environmental limits
func validateState(obs mat.Vector, angleBounds,
	speedBounds r1.Interval) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("state should have %v features", ObservationDims)
	}

	th := obs.AtVec(0)
	if th > angleBounds.Max || th < angleBounds.Min {
		return fmt.Errorf("theta is not within bounds %v", angleBounds)
	}

	thdot := obs.AtVec(1)
	if thdot > speedBounds.Max || thdot < speedBounds.Min {
		return fmt.Errorf("theta dot is not within bounds %v", speedBounds)
	}
	return nil
}
