package timestep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSetEndKeepsFirstReason(t *testing.T) {
	step := New(Mid, 1.0, 0.99, mat.NewVecDense(2, nil), 3)
	assert.Equal(t, Nil, step.EndType())

	step.SetEnd(TerminalStateReached)
	step.SetEnd(Timeout)
	assert.Equal(t, TerminalStateReached, step.EndType())
}

func TestNewTransitionCopies(t *testing.T) {
	state := mat.NewVecDense(2, []float64{1, 2})
	action := mat.NewVecDense(1, []float64{0.5})
	next := mat.NewVecDense(2, []float64{3, 4})

	tr := NewTransition(state, action, 1.5, 0, next)
	state.SetVec(0, 100)
	action.SetVec(0, -1)

	assert.Equal(t, 1.0, tr.State.AtVec(0))
	assert.Equal(t, 0.5, tr.Action.AtVec(0))
	assert.Equal(t, 0.0, tr.Done)
}
