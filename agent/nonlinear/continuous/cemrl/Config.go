package cemrl

import (
	"fmt"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/td3"
	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/expreplay"
)

// Config implements a configuration of the CEM-RL algorithm
type Config struct {
	// Search distribution
	SigmaInit float64 `json:"SigmaInit" yaml:"sigma_init"`
	PopSize   int     `json:"PopSize" yaml:"pop_size"`
	Damp      float64 `json:"Damp" yaml:"damp"`
	DampLimit float64 `json:"DampLimit" yaml:"damp_limit"`
	Elitism   bool    `json:"Elitism" yaml:"elitism"`

	// Number of population members trained by gradient descent each
	// generation, and the number of critic updates per actor update
	NGrad      int `json:"NGrad" yaml:"n_grad"`
	PolicyFreq int `json:"PolicyFreq" yaml:"policy_freq"`

	BatchSize    int     `json:"BatchSize" yaml:"batch_size"`
	BufferSize   int     `json:"BufferSize" yaml:"buffer_size"`
	LearningRate float64 `json:"LearningRate" yaml:"learning_rate"`

	// Standard deviation of Gaussian noise added to normalized actions
	// during rollouts, 0 for no noise
	ActionNoiseStd float64 `json:"ActionNoiseStd" yaml:"action_noise_std"`

	// Number of environment steps with uniform random actions before
	// actions are selected by the population's policies
	StartTimesteps int `json:"StartTimesteps" yaml:"start_timesteps"`

	// 0 for no logging, 1 for evaluation logging, 2 for episode logging
	Verbose int `json:"Verbose" yaml:"verbose"`

	// TD3 configures the gradient trainer. If nil, td3.DefaultConfig
	// is used with LearningRate. The trainer batch size is always
	// BatchSize.
	TD3 *td3.Config `json:"TD3,omitempty" yaml:"td3,omitempty"`
}

// DefaultConfig returns the default CEM-RL configuration
func DefaultConfig() Config {
	return Config{
		SigmaInit:      1e-3,
		PopSize:        10,
		Damp:           1e-3,
		DampLimit:      1e-5,
		Elitism:        false,
		NGrad:          5,
		PolicyFreq:     2,
		BatchSize:      100,
		BufferSize:     1_000_000,
		LearningRate:   1e-3,
		ActionNoiseStd: 0.0,
		StartTimesteps: 100,
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.SigmaInit <= 0 {
		return fmt.Errorf("sigma init must be positive, got %v", c.SigmaInit)
	}
	if c.PopSize < 2 {
		return fmt.Errorf("population size must be at least 2, got %v",
			c.PopSize)
	}
	if c.Damp < 0 || c.DampLimit < 0 {
		return fmt.Errorf("damp and damp limit must be non-negative")
	}
	if c.NGrad < 0 || c.NGrad > c.PopSize {
		return fmt.Errorf("number of gradient-trained members (%v) must be "+
			"in [0, population size (%v)]", c.NGrad, c.PopSize)
	}
	if c.PolicyFreq < 1 {
		return fmt.Errorf("policy frequency must be at least 1, got %v",
			c.PolicyFreq)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("cannot have batch size %v < 1", c.BatchSize)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("cannot have buffer size %v < 1", c.BufferSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v",
			c.LearningRate)
	}
	if c.ActionNoiseStd < 0 {
		return fmt.Errorf("action noise must be non-negative, got %v",
			c.ActionNoiseStd)
	}
	if c.StartTimesteps < 0 {
		return fmt.Errorf("start timesteps must be non-negative, got %v",
			c.StartTimesteps)
	}
	return nil
}

// Antithetic returns whether the search distribution samples
// populations with mirrored noise, which is the case if and only if
// the population size is even
func (c Config) Antithetic() bool {
	return c.PopSize%2 == 0
}

// trainerConfig returns the configuration of the gradient trainer
func (c Config) trainerConfig() (td3.Config, error) {
	if c.TD3 == nil {
		return td3.DefaultConfig(c.LearningRate, c.BatchSize)
	}
	trainer := *c.TD3
	trainer.BatchSize = c.BatchSize
	return trainer, nil
}

// replayConfig returns the configuration of the replay buffer. Batches
// may be sampled as soon as a single transition is stored.
func (c Config) replayConfig() expreplay.Config {
	return expreplay.Config{
		MinReplayCapacity: 1,
		MaxReplayCapacity: c.BufferSize,
		BatchSize:         c.BatchSize,
	}
}

// CreateAgent creates and returns the CEM-RL learner determined by the
// configuration
func (c Config) CreateAgent(e env.Environment, seed uint64) (*CEMRL,
	error) {
	return New(e, c, seed)
}
