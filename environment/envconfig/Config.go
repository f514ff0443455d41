// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are JSON and YAML serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/cemrl/environment/classiccontrol/mountaincar"
	"github.com/samuelfneumann/cemrl/environment/classiccontrol/pendulum"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration. Gym environments are
// only available when built with the "gym" build tag.
const (
	MountainCar EnvName = "MountainCar"
	Pendulum    EnvName = "Pendulum"
	Cartpole    EnvName = "Cartpole"
	Gym         EnvName = "Gym"
)

// TaskName stores the tasks that can be configured with this package.
// Note that not all tasks can be used with all environments. The tasks
// that can be used with each environment are as follows:
//
//	Environment			Task
//	MountainCar			Goal
//	Pendulum			SwingUp
//	Cartpole			Balance
//	Gym					(determined by GymName)
type TaskName string

// Tasks available for configuration
const (
	Goal    TaskName = "Goal"
	SwingUp TaskName = "SwingUp"
	Balance TaskName = "Balance"
)

// Config implements a specific configuration of a specific environment
// and specific task. Not all environments can have all tasks.
type Config struct {
	Environment   EnvName  `json:"Environment" yaml:"environment"`
	Task          TaskName `json:"Task" yaml:"task"`
	EpisodeCutoff int      `json:"EpisodeCutoff" yaml:"episode_cutoff"`
	Discount      float64  `json:"Discount" yaml:"discount"`

	// Name of the OpenAI Gym environment, used only if Environment is
	// Gym
	GymName string `json:"GymName,omitempty" yaml:"gym_name,omitempty"`
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, taskName TaskName, episodeCutoff int,
	discount float64) Config {
	return Config{
		Environment:   envName,
		Task:          taskName,
		EpisodeCutoff: episodeCutoff,
		Discount:      discount,
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1], got %v", c.Discount)
	}
	if c.EpisodeCutoff < 0 {
		return fmt.Errorf("episode cutoff must be non-negative, got %v",
			c.EpisodeCutoff)
	}

	switch c.Environment {
	case MountainCar:
		if c.Task != Goal {
			return fmt.Errorf("MountainCar environment has no task %v",
				c.Task)
		}
	case Pendulum:
		if c.Task != SwingUp {
			return fmt.Errorf("Pendulum environment has no task %v", c.Task)
		}
	case Cartpole:
		if c.Task != Balance {
			return fmt.Errorf("Cartpole environment has no task %v", c.Task)
		}
	case Gym:
		if c.GymName == "" {
			return fmt.Errorf("Gym environment requires a GymName")
		}
		return nil
	default:
		return fmt.Errorf("no such environment %v", c.Environment)
	}

	if c.EpisodeCutoff == 0 {
		return fmt.Errorf("%v environment requires an episode cutoff",
			c.Environment)
	}
	return nil
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	switch c.Environment {
	case MountainCar:
		return CreateMountainCar(c.EpisodeCutoff, seed, c.Discount)

	case Pendulum:
		return CreatePendulum(c.EpisodeCutoff, seed, c.Discount)

	case Cartpole:
		return CreateCartpole(c.EpisodeCutoff, seed, c.Discount)

	default:
		return createGym(c.GymName, c.EpisodeCutoff, seed, c.Discount)
	}
}

// CreateMountainCar is a factory for creating the MountainCar
// environment with default physical parameters and the Goal task.
func CreateMountainCar(cutoff int, seed uint64,
	discount float64) (env.Environment, ts.TimeStep, error) {
	position := r1.Interval{Min: -0.6, Max: -0.4}
	velocity := r1.Interval{Min: 0.0, Max: 0.0}

	s := env.NewUniformStarter([]r1.Interval{position, velocity}, seed)
	task := mountaincar.NewGoal(s, cutoff, mountaincar.GoalPosition)

	e, step, err := mountaincar.New(task, discount)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createMountainCar: %v", err)
	}
	return e, step, nil
}

// CreatePendulum is a factory for creating the Pendulum environment
// with default physical parameters and the SwingUp task.
func CreatePendulum(cutoff int, seed uint64,
	discount float64) (env.Environment, ts.TimeStep, error) {
	angle := r1.Interval{Min: -pendulum.AngleBound, Max: pendulum.AngleBound}
	speed := r1.Interval{Min: -1.0, Max: 1.0}

	s := env.NewUniformStarter([]r1.Interval{angle, speed}, seed)
	task := pendulum.NewSwingUp(s, cutoff)

	e, step, err := pendulum.New(task, discount)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createPendulum: %v", err)
	}
	return e, step, nil
}

// CreateCartpole is a factory for creating the continuous-action
// Cartpole environment with default physical parameters and the
// Balance task.
func CreateCartpole(cutoff int, seed uint64,
	discount float64) (env.Environment, ts.TimeStep, error) {
	bound := r1.Interval{Min: -0.05, Max: 0.05}
	bounds := []r1.Interval{bound, bound, bound, bound}

	s := env.NewUniformStarter(bounds, seed)
	task := cartpole.NewBalance(s, cutoff, cartpole.FailAngle)

	e, step, err := cartpole.New(task, discount)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createCartpole: %v", err)
	}
	return e, step, nil
}
