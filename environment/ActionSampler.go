package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// ActionSampler samples actions uniformly from the box described by
// an action Spec
type ActionSampler struct {
	*UniformStarter
}

// NewActionSampler returns a new ActionSampler for the continuous
// action Spec s
func NewActionSampler(s Spec, seed uint64) (*ActionSampler, error) {
	if s.Type != Action {
		return nil, fmt.Errorf("newActionSampler: spec is not an action spec")
	}
	if s.Cardinality != Continuous {
		return nil, fmt.Errorf("newActionSampler: actions must be continuous")
	}

	bounds := make([]r1.Interval, s.LowerBound.Len())
	for i := range bounds {
		bounds[i] = r1.Interval{
			Min: s.LowerBound.AtVec(i),
			Max: s.UpperBound.AtVec(i),
		}
	}

	return &ActionSampler{NewUniformStarter(bounds, seed)}, nil
}

// Sample returns an action drawn uniformly from the action space
func (a *ActionSampler) Sample() *mat.VecDense {
	return a.Start()
}
