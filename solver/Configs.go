package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
}

// NewDefaultAdam returns a new Adam Solver with ε = 1e-8, β₁ = 0.9 and
// β₂ = 0.999
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64,
	batchSize int) (*Solver, error) {
	return newSolver(Adam, AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	})
}

// Create returns a new Gorgonia Adam Solver
func (a AdamConfig) Create() G.Solver {
	return G.NewAdamSolver(
		G.WithLearnRate(a.StepSize),
		G.WithEps(a.Epsilon),
		G.WithBeta1(a.Beta1),
		G.WithBeta2(a.Beta2),
		G.WithBatchSize(float64(a.Batch)),
	)
}

// ValidType returns whether t is Adam
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// Validate checks that the hyperparameters describe a usable solver
func (a AdamConfig) Validate() error {
	if err := validateStep(a.StepSize, a.Batch); err != nil {
		return err
	}
	if a.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %v", a.Epsilon)
	}
	if a.Beta1 < 0 || a.Beta1 >= 1 || a.Beta2 < 0 || a.Beta2 >= 1 {
		return fmt.Errorf("betas must be in [0, 1), got (%v, %v)", a.Beta1,
			a.Beta2)
	}
	return nil
}

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	return newSolver(Vanilla, VanillaConfig{
		StepSize: stepSize,
		Batch:    batchSize,
		Clip:     clip,
	})
}

// Create returns a new Gorgonia Vanilla Solver
func (v VanillaConfig) Create() G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(v.StepSize),
		G.WithBatchSize(float64(v.Batch)),
	}
	if v.Clip > 0 {
		opts = append(opts, G.WithClip(v.Clip))
	}
	return G.NewVanillaSolver(opts...)
}

// ValidType returns whether t is Vanilla
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// Validate checks that the hyperparameters describe a usable solver
func (v VanillaConfig) Validate() error {
	return validateStep(v.StepSize, v.Batch)
}

func validateStep(stepSize float64, batch int) error {
	if stepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %v", stepSize)
	}
	if batch < 1 {
		return fmt.Errorf("batch size must be positive, got %v", batch)
	}
	return nil
}
