package td3

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/initwfn"
	"github.com/samuelfneumann/cemrl/network"
	"github.com/samuelfneumann/cemrl/solver"
)

// Config implements a configuration of the TD3 trainer
type Config struct {
	// Actor neural net
	ActorLayers      []int                 `json:"ActorLayers" yaml:"actor_layers"`
	ActorBiases      []bool                `json:"ActorBiases" yaml:"actor_biases"`
	ActorActivations []*network.Activation `json:"ActorActivations" yaml:"actor_activations"`

	// Critic neural nets, both critics share an architecture
	CriticLayers      []int                 `json:"CriticLayers" yaml:"critic_layers"`
	CriticBiases      []bool                `json:"CriticBiases" yaml:"critic_biases"`
	CriticActivations []*network.Activation `json:"CriticActivations" yaml:"critic_activations"`

	// Weight init function for all neural nets
	InitWFn *initwfn.InitWFn `json:"InitWFn" yaml:"init_wfn"`

	ActorSolver  *solver.Solver `json:"ActorSolver" yaml:"actor_solver"`
	CriticSolver *solver.Solver `json:"CriticSolver" yaml:"critic_solver"`

	BatchSize   int     `json:"BatchSize" yaml:"batch_size"`
	Gamma       float64 `json:"Gamma" yaml:"gamma"`
	Tau         float64 `json:"Tau" yaml:"tau"`
	PolicyNoise float64 `json:"PolicyNoise" yaml:"policy_noise"`
	NoiseClip   float64 `json:"NoiseClip" yaml:"noise_clip"`
}

// DefaultConfig returns the standard TD3 configuration: two hidden
// layers of 400 and 300 ReLU units for the actor and critics, Adam
// with the given learning rate, and the usual smoothing constants.
func DefaultConfig(learningRate float64, batchSize int) (Config, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}
	actorSolver, err := solver.NewDefaultAdam(learningRate, 1)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(learningRate, 1)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}

	return Config{
		ActorLayers:       []int{400, 300},
		ActorBiases:       []bool{true, true},
		ActorActivations:  []*network.Activation{network.ReLU(), network.ReLU()},
		CriticLayers:      []int{400, 300},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.ReLU(), network.ReLU()},

		InitWFn:      init,
		ActorSolver:  actorSolver,
		CriticSolver: criticSolver,

		BatchSize:   batchSize,
		Gamma:       0.99,
		Tau:         0.005,
		PolicyNoise: 0.2,
		NoiseClip:   0.5,
	}, nil
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("cannot have batch size %v < 1", c.BatchSize)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("tau must be in (0, 1], got %v", c.Tau)
	}
	if c.PolicyNoise < 0 || c.NoiseClip < 0 {
		return fmt.Errorf("policy noise and noise clip must be " +
			"non-negative")
	}
	if len(c.ActorLayers) != len(c.ActorBiases) ||
		len(c.ActorLayers) != len(c.ActorActivations) {
		return fmt.Errorf("actor layers, biases, and activations must " +
			"have the same length")
	}
	if len(c.CriticLayers) != len(c.CriticBiases) ||
		len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("critic layers, biases, and activations must " +
			"have the same length")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("no weight initializer given")
	}
	if c.ActorSolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("actor and critic solvers must be given")
	}
	return nil
}

// CreateAgent creates and returns the TD3 trainer described by the
// configuration
func (c Config) CreateAgent(e env.Environment, seed uint64) (*TD3, error) {
	return New(e, c, seed)
}
