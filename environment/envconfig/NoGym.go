//go:build !gym

package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	ts "github.com/samuelfneumann/cemrl/timestep"
)

func createGym(name string, _ int, _ uint64,
	_ float64) (env.Environment, ts.TimeStep, error) {
	return nil, ts.TimeStep{}, fmt.Errorf("createGym: cannot create %v, "+
		"built without the gym build tag", name)
}
