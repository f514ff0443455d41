package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single (s, a, r, s', done) tuple as stored by an
// experience replay buffer. Done is stored as a float so that it can
// be used directly as a mask on bootstrapped values.
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	Done      float64
	NextState *mat.VecDense
}

// NewTransition creates a new Transition. The vectors are copied so
// that the Transition does not alias environment or policy memory.
func NewTransition(state, action mat.Vector, reward, done float64,
	nextState mat.Vector) Transition {
	return Transition{
		State:     copyVec(state),
		Action:    copyVec(action),
		Reward:    reward,
		Done:      done,
		NextState: copyVec(nextState),
	}
}

func copyVec(v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | Reward: %.2f  |  Done: %v", t.Reward,
		t.Done)
}
