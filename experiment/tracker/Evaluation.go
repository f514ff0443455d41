package tracker

import (
	"fmt"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
)

// Evaluation tracks and saves the mean evaluation return of the search
// distribution's mean. Generations without an evaluation are skipped.
type Evaluation struct {
	returns  []float64
	filename string
}

// NewEvaluation returns a new Evaluation Tracker
func NewEvaluation(filename string) *Evaluation {
	return &Evaluation{filename: filename}
}

func (e *Evaluation) Track(g cemrl.Generation) error {
	if g.Evaluation != nil {
		e.returns = append(e.returns, g.Evaluation.Mean)
	}
	return nil
}

// Data returns the data tracked so far
func (e *Evaluation) Data() []float64 {
	return append([]float64(nil), e.returns...)
}

func (e *Evaluation) Save() error {
	if err := saveData(e.filename, e.returns); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}
