// Package network implements feed forward neural networks built on
// Gorgonia computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose forward pass lives in a Gorgonia
// computational graph. The graph is run by a VM owned by the caller.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputTo clones the network into graph g, using the
	// concatenation of inputs along axis as the input node
	CloneWithInputTo(axis int, inputs []*G.Node, g *G.ExprGraph) (NeuralNet,
		error)

	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}
