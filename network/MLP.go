package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron. The final layer always has
// outputs units and a bias, and uses outputActivation.
type mlp struct {
	g          *G.ExprGraph
	name       string
	layers     []*fcLayer
	input      *G.Node
	ownsInput  bool // Whether SetInput can be used on the input node
	numOutputs int
	numInputs  int
	batchSize  int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has outputs output nodes. The graph parameter g is populated
// with the MLP, and name is used to prefix the names of all nodes the
// MLP adds to g. Two networks in the same graph must have different
// names.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer is always added such that given any input, the output will
// be outputs. The final layer contains a bias unit and uses
// outputActivation, which may be nil for a linear output. The function
// works such that for index i, hiddenSizes[i] is the number of nodes in
// hidden layer i; biases[i] is true if the hidden layer will contain a
// bias unit; and activations[i] is the activation function for hidden
// layer i. The parameter init determines the weight initialization
// scheme.
func NewMultiHeadMLP(name string, features, batch, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, outputActivation *Activation) (NeuralNet,
	error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(name+"Input"), G.WithInit(G.Zeroes()))

	net, err := NewMultiHeadMLPFromInput(name, []*G.Node{input}, outputs, g,
		hiddenSizes, biases, init, activations, outputActivation)
	if err != nil {
		return nil, err
	}
	net.(*mlp).ownsInput = true

	return net, nil
}

// NewSingleHeadMLP returns an MLP with a single linear output node.
// This function is a convenience function for calling NewMultiHeadMLP
// with an output size of 1 and no output activation.
func NewSingleHeadMLP(name string, features, batch int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	return NewMultiHeadMLP(name, features, batch, 1, g, hiddenSizes, biases,
		init, activations, nil)
}

// NewMultiHeadMLPFromInput returns a new MLP that has a specific node as
// its input node. If multiple input nodes are given, they are first
// concatenated along the feature (column) dimension. The input of the
// returned network cannot be set with SetInput.
func NewMultiHeadMLPFromInput(name string, inputs []*G.Node, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, outputActivation *Activation) (NeuralNet,
	error) {
	if len(hiddenSizes) != len(activations) {
		msg := "newMultiHeadMLPFromInput: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newMultiHeadMLPFromInput: invalid number of biases" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input, err := concatInputs(1, inputs, g)
	if err != nil {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: %v", err)
	}
	batch, features := input.Shape()[0], input.Shape()[1]

	// Add a final layer so that the network always predicts outputs
	// values
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	hasBias := append(append([]bool{}, biases...), true)
	acts := append(append([]*Activation{}, activations...), outputActivation)

	net := &mlp{
		g:          g,
		name:       name,
		layers:     addfcLayers(g, name, features, sizes, hasBias, acts, init),
		input:      input,
		numOutputs: outputs,
		numInputs:  features,
		batchSize:  batch,
	}

	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newMultiHeadMLPFromInput: could not compute "+
			"forward pass: %v", err)
	}
	return net, nil
}

// concatInputs concatenates inputs along axis if needed, ensuring all
// inputs belong to g and the result is a matrix
func concatInputs(axis int, inputs []*G.Node, g *G.ExprGraph) (*G.Node,
	error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input nodes given")
	}
	for _, input := range inputs {
		if input.Graph() != g {
			return nil, fmt.Errorf("not all inputs have the same graph")
		}
	}

	input := inputs[0]
	if len(inputs) > 1 {
		var err error
		input, err = G.Concat(axis, inputs...)
		if err != nil {
			return nil, fmt.Errorf("could not concatenate inputs: %v", err)
		}
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("input must be a matrix node")
	}
	return input, nil
}

// Graph returns the computational graph of the MLP.
func (m *mlp) Graph() *G.ExprGraph {
	return m.g
}

// Clone clones an MLP into a new graph
func (m *mlp) Clone() (NeuralNet, error) {
	return m.CloneWithBatch(m.batchSize)
}

// CloneWithBatch clones an MLP into a new graph with a new input batch
// size.
func (m *mlp) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(graph, tensor.Float64,
		G.WithShape(batchSize, m.numInputs), G.WithName(m.name+"Input"),
		G.WithInit(G.Zeroes()))

	net, err := m.CloneWithInputTo(1, []*G.Node{input}, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	net.(*mlp).ownsInput = true

	return net, nil
}

// CloneWithInputTo clones an MLP to a specific computational graph
// with a specified input node. If multiple input nodes are given, then
// they are first concatenated along the specified axis.
func (m *mlp) CloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	input, err := concatInputs(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: %v", err)
	}
	if input.Shape()[1] != m.numInputs {
		return nil, fmt.Errorf("cloneWithInputTo: invalid number of input "+
			"features \n\twant(%v) \n\thave(%v)", m.numInputs,
			input.Shape()[1])
	}

	layers := make([]*fcLayer, len(m.layers))
	for i := range m.layers {
		layers[i] = m.layers[i].cloneTo(graph)
	}

	net := &mlp{
		g:          graph,
		name:       m.name,
		layers:     layers,
		input:      input,
		numOutputs: m.numOutputs,
		numInputs:  m.numInputs,
		batchSize:  input.Shape()[0],
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: could not compute "+
			"forward pass: %v", err)
	}

	return net, nil
}

// BatchSize returns the batch size of inputs to the network
func (m *mlp) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input vector
func (m *mlp) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs from the network
func (m *mlp) Outputs() int {
	return m.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. Inputs are given in row major order.
func (m *mlp) SetInput(input []float64) error {
	if !m.ownsInput {
		return fmt.Errorf("setInput: network input is computed by the graph")
	}
	if len(input) != m.numInputs*m.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.numInputs*m.batchSize, len(input))
	}

	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Set sets the weights of the network to be equal to the weights of
// another network with the same architecture
func (m *mlp) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := m.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: networks have different number of learnables")
	}

	for i := range nodes {
		dest, err := learnableData(nodes[i])
		if err != nil {
			return fmt.Errorf("set: %v", err)
		}
		src, err := learnableData(sourceNodes[i])
		if err != nil {
			return fmt.Errorf("set: %v", err)
		}
		if len(dest) != len(src) {
			return fmt.Errorf("set: learnable %v has mismatched size", i)
		}
		copy(dest, src)
	}
	return nil
}

// Polyak sets the weights of the network to be a polyak average
// between its existing weights and the weights of another network:
// w ← (1 - tau) w + tau w'
func (m *mlp) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := m.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: networks have different number of " +
			"learnables")
	}

	for i := range nodes {
		dest, err := learnableData(nodes[i])
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}
		src, err := learnableData(sourceNodes[i])
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}
		if len(dest) != len(src) {
			return fmt.Errorf("polyak: learnable %v has mismatched size", i)
		}

		for j := range dest {
			dest[j] = (1-tau)*dest[j] + tau*src[j]
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the network, ordered by
// layer with each layer's weights before its bias
func (m *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(m.layers))
		for _, layer := range m.layers {
			learnables = append(learnables, layer.weights)
			if layer.bias != nil {
				learnables = append(learnables, layer.bias)
			}
		}
		m.learnables = G.Nodes(learnables)
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients.
func (m *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if m.model == nil {
		model := make([]G.ValueGrad, 0, len(m.Learnables()))
		for _, node := range m.Learnables() {
			model = append(model, node)
		}
		m.model = model
	}
	return m.model
}

// fwd performs the forward pass of the MLP on its input node
func (m *mlp) fwd() error {
	pred := m.input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of layer "+
				"%v: %v", i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)

	return nil
}

// Output returns the output of the MLP after its graph has been run
func (m *mlp) Output() G.Value {
	return m.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the MLP
func (m *mlp) Prediction() *G.Node {
	return m.prediction
}

// learnableData returns the backing data of a learnable node
func learnableData(node *G.Node) ([]float64, error) {
	value := node.Value()
	if value == nil {
		return nil, fmt.Errorf("learnable %v has no value", node.Name())
	}

	data, ok := value.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("learnable %v is not float64", node.Name())
	}
	return data, nil
}
