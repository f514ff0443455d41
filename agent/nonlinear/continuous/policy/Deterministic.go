// Package policy implements policies for continuous action
// environments using neural network function approximation
package policy

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Deterministic implements a deterministic policy whose actions are
// the output of an MLP with a tanh output activation. Actions are
// therefore in [-1, 1] in each dimension and should be scaled by
// MaxAction() before being taken in the environment.
//
// The policy network has a batch size of 1 and is run by its own VM.
// Batched copies of the network used for training can be created with
// Network().CloneWithBatch() and synchronized with Set().
type Deterministic struct {
	net network.NeuralNet
	vm  G.VM

	actionDims int
	maxAction  float64
}

// NewDeterministic returns a new deterministic policy for the
// environment e. The hidden layers of the policy network are described
// by hiddenSizes, biases, and activations.
func NewDeterministic(e env.Environment, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn) (*Deterministic,
	error) {
	actionSpec := e.ActionSpec()
	if actionSpec.Cardinality != env.Continuous {
		return nil, fmt.Errorf("newDeterministic: actions should be " +
			"continuous")
	}

	features := e.ObservationSpec().Shape.Len()
	actionDims := actionSpec.Shape.Len()

	net, err := network.NewMultiHeadMLP("actor", features, 1, actionDims,
		G.NewGraph(), hiddenSizes, biases, init, activations,
		network.TanH())
	if err != nil {
		return nil, fmt.Errorf("newDeterministic: could not create policy "+
			"network: %v", err)
	}

	return &Deterministic{
		net:        net,
		vm:         G.NewTapeMachine(net.Graph()),
		actionDims: actionDims,
		maxAction:  actionSpec.MaxMagnitude(),
	}, nil
}

// SelectAction returns the normalized action taken by the policy given
// a single observation
func (d *Deterministic) SelectAction(obs mat.Vector) (*mat.VecDense,
	error) {
	if obs.Len() != d.net.Features() {
		return nil, fmt.Errorf("selectAction: invalid observation size "+
			"\n\twant(%v) \n\thave(%v)", d.net.Features(), obs.Len())
	}

	input := make([]float64, obs.Len())
	for i := range input {
		input[i] = obs.AtVec(i)
	}
	if err := d.net.SetInput(input); err != nil {
		return nil, fmt.Errorf("selectAction: cannot set input: %v", err)
	}

	defer d.vm.Reset()
	if err := d.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("selectAction: could not run policy VM: %v",
			err)
	}

	action := make([]float64, d.actionDims)
	copy(action, d.net.Output().Data().([]float64))

	return mat.NewVecDense(d.actionDims, action), nil
}

// MaxAction returns the largest magnitude of environmental actions
func (d *Deterministic) MaxAction() float64 {
	return d.maxAction
}

// ActionDims returns the dimensionality of actions
func (d *Deterministic) ActionDims() int {
	return d.actionDims
}

// ParametersToVector returns a copy of the policy's parameters as a
// single vector
func (d *Deterministic) ParametersToVector() (*mat.VecDense, error) {
	return network.ParametersToVector(d.net)
}

// LoadFromVector sets the policy's parameters from a single vector
func (d *Deterministic) LoadFromVector(v mat.Vector) error {
	return network.LoadFromVector(d.net, v)
}

// Set sets the policy's parameters to those of net, which must have
// the same architecture as the policy network
func (d *Deterministic) Set(net network.NeuralNet) error {
	return d.net.Set(net)
}

// Network returns the policy network
func (d *Deterministic) Network() network.NeuralNet {
	return d.net
}

// Close closes the policy's VM
func (d *Deterministic) Close() error {
	return d.vm.Close()
}
