// Package agent defines the interfaces between population-based
// learners, their policies, and the gradient-based trainers which
// improve those policies.
package agent

import (
	"encoding/gob"

	"github.com/samuelfneumann/cemrl/expreplay"
	"github.com/samuelfneumann/cemrl/network"
	"gonum.org/v1/gonum/mat"
)

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Actions returned by
// SelectAction are in the normalized range [-1, 1] in each dimension
// and must be rescaled before being taken in an environment.
type Policy interface {
	SelectAction(obs mat.Vector) (*mat.VecDense, error)
}

// VectorLoader is a model whose parameters can be set from a flat
// vector
type VectorLoader = network.VectorLoader

// VectorPolicy is a Policy whose learnable parameters can be read and
// written as a single flat vector.
type VectorPolicy interface {
	Policy
	VectorLoader

	// ParametersToVector returns a copy of the policy's parameters
	ParametersToVector() (*mat.VecDense, error)

	// MaxAction returns the scale which maps normalized actions onto
	// environmental actions
	MaxAction() float64
}

// ActorCriticTrainer implements off-policy actor-critic gradient
// updates on an actor whose parameters may be swapped out between
// updates.
type ActorCriticTrainer interface {
	// TrainCritic performs a single critic update on a batch of
	// transitions
	TrainCritic(expreplay.Batch) error

	// TrainActor performs a single actor update on a batch of
	// transitions
	TrainActor(expreplay.Batch) error

	// ResetActorSolver discards any optimizer state accumulated for
	// the actor
	ResetActorSolver()

	// Actor returns the actor that is trained. The actor is also the
	// behaviour policy used when interacting with an environment.
	Actor() VectorPolicy

	// ActorTarget returns the target actor used for computing critic
	// update targets
	ActorTarget() VectorLoader

	gob.GobEncoder
	gob.GobDecoder
}

// Closer is a trainer that must be closed after it is done learning
type Closer interface {
	Close() error
}
