// Package evaluation implements the evaluation of policies in
// environments over a number of episodes
package evaluation

import (
	"fmt"

	env "github.com/samuelfneumann/cemrl/environment"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Predictor selects the action to take in an environment given an
// observation. Actions are in the environment's own units.
type Predictor interface {
	Predict(obs mat.Vector) (*mat.VecDense, error)
}

// EvaluatePolicy runs the policy for episodes full episodes in the
// environment e and returns the mean and population standard deviation
// of the episodic returns.
func EvaluatePolicy(policy Predictor, e env.Environment,
	episodes int) (float64, float64, error) {
	returns, err := EpisodeReturns(policy, e, episodes)
	if err != nil {
		return 0, 0, fmt.Errorf("evaluatePolicy: %v", err)
	}

	return stat.Mean(returns, nil), stat.PopStdDev(returns, nil), nil
}

// EpisodeReturns runs the policy for episodes full episodes in the
// environment e and returns the return of each episode
func EpisodeReturns(policy Predictor, e env.Environment,
	episodes int) ([]float64, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("episodeReturns: must run at least one " +
			"episode")
	}

	returns := make([]float64, episodes)
	for i := range returns {
		step, err := e.Reset()
		if err != nil {
			return nil, fmt.Errorf("episodeReturns: could not reset "+
				"environment: %v", err)
		}

		done := false
		for !done {
			action, err := policy.Predict(step.Observation)
			if err != nil {
				return nil, fmt.Errorf("episodeReturns: could not select "+
					"action: %v", err)
			}

			step, done, err = e.Step(action)
			if err != nil {
				return nil, fmt.Errorf("episodeReturns: could not step "+
					"environment: %v", err)
			}
			returns[i] += step.Reward
		}
	}

	return returns, nil
}
