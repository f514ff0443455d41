package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newfcLayer adds a new fully connected layer to g. Weights are
// initialized with init and biases with zeroes.
func newfcLayer(g *G.ExprGraph, name string, in, out int, bias bool,
	act *Activation, init G.InitWFn) *fcLayer {
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
		G.WithName(name+"W"), G.WithInit(init))

	var b *G.Node
	if bias {
		b = G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
			G.WithName(name+"B"), G.WithInit(G.Zeroes()))
	}

	return &fcLayer{weights: weights, bias: b, act: act}
}

// addfcLayers adds len(hiddenSizes) fully connected layers to g, named
// with the given prefix
func addfcLayers(g *G.ExprGraph, prefix string, features int,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn) []*fcLayer {
	layers := make([]*fcLayer, len(hiddenSizes))

	in := features
	for i, out := range hiddenSizes {
		name := fmt.Sprintf("%vL%v", prefix, i)
		layers[i] = newfcLayer(g, name, in, out, biases[i], activations[i],
			init)
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, err
	}

	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, err
		}
	}

	if f.act == nil {
		return x, nil
	}
	return f.act.fwd(x)
}

// cloneTo clones an fcLayer to a new computational graph, keeping its
// current weights
func (f *fcLayer) cloneTo(g *G.ExprGraph) *fcLayer {
	var newBias *G.Node
	if f.bias != nil {
		newBias = f.bias.CloneTo(g)
	}

	return &fcLayer{
		weights: f.weights.CloneTo(g),
		bias:    newBias,
		act:     f.act,
	}
}
