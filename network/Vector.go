package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// VectorLoader is a model whose learnable parameters can be replaced by
// a flat parameter vector
type VectorLoader interface {
	LoadFromVector(v mat.Vector) error
}

// NumParameters returns the total number of learnable scalars in net
func NumParameters(net NeuralNet) int {
	n := 0
	for _, node := range net.Learnables() {
		n += node.Shape().TotalSize()
	}
	return n
}

// ParametersToVector flattens the learnable parameters of net into a
// single vector. Learnables are concatenated in the order returned by
// Learnables(), each in row major order.
func ParametersToVector(net NeuralNet) (*mat.VecDense, error) {
	params := make([]float64, 0, NumParameters(net))
	for _, node := range net.Learnables() {
		data, err := learnableData(node)
		if err != nil {
			return nil, fmt.Errorf("parametersToVector: %v", err)
		}
		params = append(params, data...)
	}
	return mat.NewVecDense(len(params), params), nil
}

// LoadFromVector sets the learnable parameters of net from a flat
// vector laid out as by ParametersToVector. The vector is copied.
func LoadFromVector(net NeuralNet, v mat.Vector) error {
	if want := NumParameters(net); v.Len() != want {
		return fmt.Errorf("loadFromVector: invalid vector length\n\twant(%v)"+
			"\n\thave(%v)", want, v.Len())
	}

	offset := 0
	for _, node := range net.Learnables() {
		data, err := learnableData(node)
		if err != nil {
			return fmt.Errorf("loadFromVector: %v", err)
		}
		for i := range data {
			data[i] = v.AtVec(offset + i)
		}
		offset += len(data)
	}
	return nil
}

// vectorLoader adapts a NeuralNet to the VectorLoader interface
type vectorLoader struct {
	net NeuralNet
}

// AsVectorLoader returns a VectorLoader which loads vectors into net
func AsVectorLoader(net NeuralNet) VectorLoader {
	return vectorLoader{net}
}

// LoadFromVector implements the VectorLoader interface
func (v vectorLoader) LoadFromVector(params mat.Vector) error {
	return LoadFromVector(v.net, params)
}
