package policy

import (
	"errors"
	"math"
	"testing"

	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/cemrl/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	G "gorgonia.org/gorgonia"
)

func newPendulum(t *testing.T) env.Environment {
	bounds := []r1.Interval{{Min: -math.Pi, Max: math.Pi}, {Min: -1, Max: 1}}
	task := pendulum.NewSwingUp(env.NewUniformStarter(bounds, 3), 200)
	e, _, err := pendulum.New(task, 0.99)
	require.NoError(t, err)
	return e
}

func newPolicy(t *testing.T) *Deterministic {
	p, err := NewDeterministic(newPendulum(t), []int{16, 16},
		[]bool{true, true},
		[]*network.Activation{network.ReLU(), network.ReLU()},
		G.GlorotU(1.0))
	require.NoError(t, err)
	return p
}

func TestSelectActionIsNormalized(t *testing.T) {
	p := newPolicy(t)
	defer p.Close()

	assert.Equal(t, pendulum.TorqueBound, p.MaxAction())
	assert.Equal(t, 1, p.ActionDims())

	for _, obs := range [][]float64{{0, 0}, {3, 8}, {-3, -8}, {1, -2}} {
		action, err := p.SelectAction(mat.NewVecDense(2, obs))
		require.NoError(t, err)
		require.Equal(t, 1, action.Len())
		assert.LessOrEqual(t, math.Abs(action.AtVec(0)), 1.0)
	}
}

func TestSelectActionRejectsWrongObservation(t *testing.T) {
	p := newPolicy(t)
	defer p.Close()

	_, err := p.SelectAction(mat.NewVecDense(3, nil))
	assert.Error(t, err)
}

func TestLoadFromVectorChangesActions(t *testing.T) {
	p := newPolicy(t)
	defer p.Close()

	params, err := p.ParametersToVector()
	require.NoError(t, err)
	assert.Equal(t, network.NumParameters(p.Network()), params.Len())

	// All-zero weights give a zero action from the tanh output
	zeros := mat.NewVecDense(params.Len(), nil)
	require.NoError(t, p.LoadFromVector(zeros))

	action, err := p.SelectAction(mat.NewVecDense(2, []float64{1, 1}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, action.AtVec(0))

	require.NoError(t, p.LoadFromVector(params))
	restored, err := p.ParametersToVector()
	require.NoError(t, err)
	assert.True(t, mat.Equal(params, restored))
}

// failingVM fails every run and counts its resets
type failingVM struct {
	resets int
}

func (f *failingVM) RunAll() error { return errors.New("run failed") }
func (f *failingVM) Reset()        { f.resets++ }
func (f *failingVM) Close() error  { return nil }

func TestSelectActionResetsVMOnFailure(t *testing.T) {
	p := newPolicy(t)
	defer p.Close()

	original := p.vm
	defer func() { p.vm = original }()
	vm := &failingVM{}
	p.vm = vm

	_, err := p.SelectAction(mat.NewVecDense(2, nil))
	assert.Error(t, err)
	assert.Equal(t, 1, vm.resets)
}
