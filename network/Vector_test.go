package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func newTestNet(t *testing.T, batch int) NeuralNet {
	g := G.NewGraph()
	net, err := NewMultiHeadMLP("test", 3, batch, 2, g, []int{4, 5},
		[]bool{true, false}, G.GlorotU(1.0),
		[]*Activation{ReLU(), TanH()}, TanH())
	require.NoError(t, err)
	return net
}

func TestNumParameters(t *testing.T) {
	net := newTestNet(t, 1)

	// 3x4 + 4 bias, 4x5 no bias, 5x2 + 2 bias
	assert.Equal(t, 12+4+20+10+2, NumParameters(net))
}

func TestLoadFromVectorRoundTrip(t *testing.T) {
	net := newTestNet(t, 1)
	n := NumParameters(net)

	rng := rand.New(rand.NewSource(42))
	params := make([]float64, n)
	for i := range params {
		params[i] = rng.NormFloat64()
	}
	v := mat.NewVecDense(n, params)

	require.NoError(t, LoadFromVector(net, v))
	got, err := ParametersToVector(net)
	require.NoError(t, err)

	assert.True(t, floats.EqualApprox(params, got.RawVector().Data, 1e-12))
}

func TestLoadFromVectorCopies(t *testing.T) {
	net := newTestNet(t, 1)
	n := NumParameters(net)
	v := mat.NewVecDense(n, nil)

	require.NoError(t, LoadFromVector(net, v))
	v.SetVec(0, 10)

	got, err := ParametersToVector(net)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.AtVec(0))
}

func TestLoadFromVectorWrongLength(t *testing.T) {
	net := newTestNet(t, 1)
	err := LoadFromVector(net, mat.NewVecDense(3, nil))
	assert.Error(t, err)
}

func TestSetAndPolyak(t *testing.T) {
	source := newTestNet(t, 1)
	dest, err := source.CloneWithBatch(8)
	require.NoError(t, err)

	n := NumParameters(source)
	ones := make([]float64, n)
	floats.AddConst(1, ones)
	require.NoError(t, LoadFromVector(source, mat.NewVecDense(n, ones)))
	require.NoError(t, LoadFromVector(dest, mat.NewVecDense(n, nil)))

	require.NoError(t, dest.Polyak(source, 0.25))
	got, err := ParametersToVector(dest)
	require.NoError(t, err)
	for _, w := range got.RawVector().Data {
		assert.InDelta(t, 0.25, w, 1e-12)
	}

	require.NoError(t, dest.Set(source))
	got, err = ParametersToVector(dest)
	require.NoError(t, err)
	assert.Equal(t, ones, got.RawVector().Data)
}

func TestForwardPass(t *testing.T) {
	net := newTestNet(t, 2)
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	require.NoError(t, net.SetInput([]float64{1, 2, 3, -1, -2, -3}))
	require.NoError(t, vm.RunAll())

	out := net.Output().Data().([]float64)
	require.Len(t, out, 4)
	for _, o := range out {
		assert.LessOrEqual(t, o, 1.0)
		assert.GreaterOrEqual(t, o, -1.0)
	}
	vm.Reset()
}

func TestCloneWithInputToCannotSetInput(t *testing.T) {
	net := newTestNet(t, 2)
	g := G.NewGraph()
	a := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 1), G.WithName("a"),
		G.WithInit(G.Zeroes()))
	b := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2), G.WithName("b"),
		G.WithInit(G.Zeroes()))

	clone, err := net.CloneWithInputTo(1, []*G.Node{a, b}, g)
	require.NoError(t, err)
	assert.Error(t, clone.SetInput(make([]float64, 6)))
	assert.Equal(t, 2, clone.BatchSize())
}

func TestActivationText(t *testing.T) {
	var a Activation
	require.NoError(t, a.UnmarshalText([]byte("tanh")))
	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "tanh", string(text))
	assert.Error(t, a.UnmarshalText([]byte("sigmoid")))
}
