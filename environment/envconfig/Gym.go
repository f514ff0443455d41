//go:build gym

package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/environment/gym"
	ts "github.com/samuelfneumann/cemrl/timestep"
)

func createGym(name string, cutoff int, seed uint64,
	discount float64) (env.Environment, ts.TimeStep, error) {
	e, step, err := gym.New(name, discount, seed, cutoff)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createGym: %v", err)
	}
	return e, step, nil
}
