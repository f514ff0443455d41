package tracker

import (
	"fmt"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Return tracks and saves a statistic of the episodic returns of each
// population in an experiment. Since each member of a population is
// rolled out for a single episode, the returns are the fitnesses of
// the population.
type Return struct {
	statistic func([]float64) float64
	returns   []float64
	filename  string
}

// NewMeanReturn returns a new *Return Tracker which tracks the mean
// return of each population
func NewMeanReturn(filename string) *Return {
	return &Return{
		statistic: func(x []float64) float64 { return stat.Mean(x, nil) },
		filename:  filename,
	}
}

// NewMaxReturn returns a new *Return Tracker which tracks the return
// of the best member of each population
func NewMaxReturn(filename string) *Return {
	return &Return{
		statistic: floats.Max,
		filename:  filename,
	}
}

// Track caches the statistic of the population's returns
func (r *Return) Track(g cemrl.Generation) error {
	if len(g.Fitnesses) == 0 {
		return fmt.Errorf("track: generation %v has no returns", g.Number)
	}
	r.returns = append(r.returns, r.statistic(g.Fitnesses))
	return nil
}

// Data returns the data tracked so far
func (r *Return) Data() []float64 {
	return append([]float64(nil), r.returns...)
}

// Save saves the data tracked by the Return Tracker to disk
func (r *Return) Save() error {
	if err := saveData(r.filename, r.returns); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}
