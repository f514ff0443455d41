// Package cemrl implements CEM-RL, which combines a separable
// Cross-Entropy Method search over actor parameters with TD3 updates
// of part of each population.
//
// Each generation, a population of actor parameter vectors is sampled
// from the search distribution. The first NGrad members are improved
// with TD3 using experience gathered by earlier generations, after
// which every member is rolled out for one episode in the environment.
// The episodic returns are the fitnesses used to update the search
// distribution.
package cemrl

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samuelfneumann/cemrl/agent"
	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/td3"
	"github.com/samuelfneumann/cemrl/cem"
	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/evaluation"
	"github.com/samuelfneumann/cemrl/expreplay"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/samuelfneumann/cemrl/utils/floatutils"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// FileExt is the extension of files written by Save
const FileExt = ".bin"

// State holds the counters of a CEM-RL learner. Counters are only
// reset when the learner is constructed, so that repeated calls to
// Learn continue where the previous call left off.
type State struct {
	// Total number of environment steps taken during rollouts
	NumTimesteps int

	// Total number of rollout episodes
	EpisodeNum int

	// Number of environment steps taken by the previous generation
	ActorSteps int

	// Environment steps since the last evaluation, modulo the
	// evaluation frequency
	TimestepsSinceEval int

	// Number of completed generations
	Generation int
}

// Callback is called once per generation, after the population is
// sampled. Returning false stops learning before the generation is
// trained or rolled out.
type Callback func(*State) bool

// Evaluation is the result of evaluating the mean of the search
// distribution
type Evaluation struct {
	NumTimesteps int
	Mean         float64
	Std          float64
}

// Generation summarizes a completed generation
type Generation struct {
	Number       int
	NumTimesteps int
	EpisodeNum   int
	ActorSteps   int

	// Fitnesses of the population, in population order
	Fitnesses []float64

	// Evaluation run before the generation's rollouts, nil if the
	// mean was not evaluated
	Evaluation *Evaluation
}

// Hook is notified after each generation's search distribution
// update. A non-nil error stops Learn and is returned by it.
type Hook func(Generation) error

// CEMRL implements the CEM-RL algorithm
type CEMRL struct {
	env       env.Environment
	maxAction float64
	maxSteps  int
	obsDims   int

	trainer agent.ActorCriticTrainer
	actor   agent.VectorPolicy
	target  agent.VectorLoader
	replay  expreplay.ExperienceReplayer
	es      *cem.CEM

	sampler *env.ActionSampler
	noise   distuv.Normal

	popSize        int
	nGrad          int
	policyFreq     int
	actionNoiseStd float64
	startTimesteps int
	verbose        int

	state       State
	evaluations []Evaluation
	hooks       []Hook
	logger      *logrus.Logger
}

// New returns a new CEM-RL learner for environment e, trained with
// TD3 as configured by c
func New(e env.Environment, c Config, seed uint64) (*CEMRL, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid config: %v", err)
	}

	trainerConfig, err := c.trainerConfig()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	trainer, err := td3.New(e, trainerConfig, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create trainer: %v", err)
	}

	obsDims := e.ObservationSpec().Shape.Len()
	actionDims := e.ActionSpec().Shape.Len()
	replay, err := c.replayConfig().Create(obsDims, actionDims, seed+1)
	if err != nil {
		trainer.Close()
		return nil, fmt.Errorf("new: could not create replay buffer: %v",
			err)
	}

	learner, err := NewWith(e, c, trainer, replay, seed+2)
	if err != nil {
		trainer.Close()
		return nil, err
	}
	return learner, nil
}

// NewWith returns a new CEM-RL learner which uses the given trainer
// and replay buffer. The replay buffer's batch size determines the
// batches passed to the trainer. The search distribution is centred
// on the trainer's current actor parameters.
func NewWith(e env.Environment, c Config, trainer agent.ActorCriticTrainer,
	replay expreplay.ExperienceReplayer, seed uint64) (*CEMRL, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newWith: invalid config: %v", err)
	}

	actor := trainer.Actor()
	mu, err := actor.ParametersToVector()
	if err != nil {
		return nil, fmt.Errorf("newWith: could not get actor parameters: "+
			"%v", err)
	}

	es, err := cem.New(mu, c.SigmaInit, c.PopSize, c.Damp, c.DampLimit,
		c.Antithetic(), c.Elitism, seed)
	if err != nil {
		return nil, fmt.Errorf("newWith: could not create search "+
			"distribution: %v", err)
	}

	sampler, err := env.NewActionSampler(e.ActionSpec(), seed+1)
	if err != nil {
		return nil, fmt.Errorf("newWith: %v", err)
	}

	noise := distuv.Normal{
		Mu:    0,
		Sigma: c.ActionNoiseStd,
		Src:   rand.NewSource(seed + 2),
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	return &CEMRL{
		env:       e,
		maxAction: actor.MaxAction(),
		maxSteps:  env.MaxEpisodeSteps(e),
		obsDims:   e.ObservationSpec().Shape.Len(),

		trainer: trainer,
		actor:   actor,
		target:  trainer.ActorTarget(),
		replay:  replay,
		es:      es,

		sampler: sampler,
		noise:   noise,

		popSize:        c.PopSize,
		nGrad:          c.NGrad,
		policyFreq:     c.PolicyFreq,
		actionNoiseStd: c.ActionNoiseStd,
		startTimesteps: c.StartTimesteps,
		verbose:        c.Verbose,

		logger: logger,
	}, nil
}

// SetLogger sets the logger used when Verbose > 0
func (c *CEMRL) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Register registers a Hook to be called after each generation
func (c *CEMRL) Register(h Hook) {
	c.hooks = append(c.hooks, h)
}

// State returns the current counters of the learner
func (c *CEMRL) State() State {
	return c.state
}

// Evaluations returns all evaluations run so far, in order
func (c *CEMRL) Evaluations() []Evaluation {
	evals := make([]Evaluation, len(c.evaluations))
	copy(evals, c.evaluations)
	return evals
}

// SearchDistribution returns the encodable search distribution
func (c *CEMRL) SearchDistribution() gob.GobEncoder {
	return c.es
}

// Mean returns a copy of the mean of the search distribution
func (c *CEMRL) Mean() *mat.VecDense {
	return c.es.Mean()
}

// Learn runs generations until at least totalTimesteps rollout steps
// have been taken in total. If evalFreq > 0, the mean of the search
// distribution is evaluated for nEvalEpisodes episodes at the start of
// the first generation after at least evalFreq rollout steps since the
// last evaluation. When Learn returns, the actor holds the mean of the
// search distribution.
func (c *CEMRL) Learn(totalTimesteps int, callback Callback, evalFreq,
	nEvalEpisodes int) error {
	if evalFreq > 0 && nEvalEpisodes <= 0 {
		return fmt.Errorf("learn: must evaluate at least one episode")
	}

	for c.state.NumTimesteps < totalTimesteps {
		start := time.Now()

		population, err := c.es.Ask(c.popSize)
		if err != nil {
			return fmt.Errorf("learn: %v", err)
		}
		fitnesses := make([]float64, 0, c.popSize)

		if callback != nil && !callback(&c.state) {
			break
		}

		if c.state.NumTimesteps > 0 {
			if err := c.trainPopulation(population); err != nil {
				return fmt.Errorf("learn: %w", err)
			}
		}

		var eval *Evaluation
		if evalFreq > 0 && c.state.TimestepsSinceEval >= evalFreq {
			c.state.TimestepsSinceEval %= evalFreq
			if eval, err = c.evaluate(nEvalEpisodes); err != nil {
				return fmt.Errorf("learn: %v", err)
			}
		}

		c.state.ActorSteps = 0
		for _, member := range population {
			ret, steps, err := c.rollout(member)
			if err != nil {
				return fmt.Errorf("learn: %v", err)
			}
			fitnesses = append(fitnesses, ret)
			c.state.ActorSteps += steps
		}

		if err := c.es.Tell(population, fitnesses); err != nil {
			return fmt.Errorf("learn: could not update search "+
				"distribution: %v", err)
		}
		c.state.TimestepsSinceEval += c.state.ActorSteps
		c.state.Generation++

		if c.verbose > 0 {
			fps := float64(c.state.ActorSteps) / time.Since(start).Seconds()
			c.logger.WithFields(logrus.Fields{
				"generation":    c.state.Generation,
				"num_timesteps": c.state.NumTimesteps,
				"fps":           int(fps),
			}).Info("generation complete")
		}

		gen := Generation{
			Number:       c.state.Generation,
			NumTimesteps: c.state.NumTimesteps,
			EpisodeNum:   c.state.EpisodeNum,
			ActorSteps:   c.state.ActorSteps,
			Fitnesses:    fitnesses,
			Evaluation:   eval,
		}
		for _, hook := range c.hooks {
			if err := hook(gen); err != nil {
				return fmt.Errorf("learn: %w", err)
			}
		}
	}

	if err := c.actor.LoadFromVector(c.es.Mean()); err != nil {
		return fmt.Errorf("learn: could not load mean: %v", err)
	}
	return nil
}

// trainPopulation trains the first nGrad members of the population
// with the trainer, overwriting them with the trained parameters
func (c *CEMRL) trainPopulation(population []*mat.VecDense) error {
	if c.nGrad == 0 {
		return nil
	}
	iterations := 2 * (c.state.ActorSteps / c.nGrad)

	for i := 0; i < c.nGrad; i++ {
		if err := c.actor.LoadFromVector(population[i]); err != nil {
			return fmt.Errorf("trainPopulation: could not load actor: %v",
				err)
		}
		if err := c.target.LoadFromVector(population[i]); err != nil {
			return fmt.Errorf("trainPopulation: could not load target "+
				"actor: %v", err)
		}
		c.trainer.ResetActorSolver()

		for it := 0; it < iterations; it++ {
			batch, err := c.replay.Sample()
			if err != nil {
				return fmt.Errorf("trainPopulation: %w", err)
			}
			if err := c.trainer.TrainCritic(batch); err != nil {
				return fmt.Errorf("trainPopulation: %v", err)
			}
			if it%c.policyFreq == 0 {
				if err := c.trainer.TrainActor(batch); err != nil {
					return fmt.Errorf("trainPopulation: %v", err)
				}
			}
		}

		params, err := c.actor.ParametersToVector()
		if err != nil {
			return fmt.Errorf("trainPopulation: %v", err)
		}
		population[i].CopyVec(params)
	}
	return nil
}

// evaluate evaluates the mean of the search distribution and records
// the result. Evaluation steps are neither counted nor stored.
func (c *CEMRL) evaluate(episodes int) (*Evaluation, error) {
	if err := c.actor.LoadFromVector(c.es.Mean()); err != nil {
		return nil, fmt.Errorf("evaluate: could not load mean: %v", err)
	}

	mean, std, err := evaluation.EvaluatePolicy(c, c.env, episodes)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}
	eval := Evaluation{
		NumTimesteps: c.state.NumTimesteps,
		Mean:         mean,
		Std:          std,
	}
	c.evaluations = append(c.evaluations, eval)

	if c.verbose > 0 {
		c.logger.WithFields(logrus.Fields{
			"num_timesteps": eval.NumTimesteps,
			"mean_reward":   fmt.Sprintf("%.2f", mean),
			"std_reward":    fmt.Sprintf("%.2f", std),
		}).Info("eval")
	}
	return &eval, nil
}

// rollout runs one episode with the actor parameters member, storing
// every transition in the replay buffer. It returns the episodic
// return and the episode length.
func (c *CEMRL) rollout(member mat.Vector) (float64, int, error) {
	if err := c.actor.LoadFromVector(member); err != nil {
		return 0, 0, fmt.Errorf("rollout: could not load actor: %v", err)
	}

	step, err := c.env.Reset()
	if err != nil {
		return 0, 0, fmt.Errorf("rollout: could not reset environment: %v",
			err)
	}
	c.state.EpisodeNum++

	var episodeReward float64
	var episodeSteps int
	done := false
	for !done {
		action, err := c.act(step.Observation)
		if err != nil {
			return 0, 0, fmt.Errorf("rollout: %v", err)
		}

		envAction := mat.NewVecDense(action.Len(), nil)
		envAction.ScaleVec(c.maxAction, action)

		next, last, err := c.env.Step(envAction)
		if err != nil {
			return 0, 0, fmt.Errorf("rollout: could not step environment: "+
				"%v", err)
		}
		done = last

		// Episodes cut off by the step limit do not end in a terminal
		// state
		doneFlag := 0.0
		if done && !(c.maxSteps > 0 && episodeSteps+1 == c.maxSteps) {
			doneFlag = 1.0
		}

		transition := ts.NewTransition(step.Observation, action,
			next.Reward, doneFlag, next.Observation)
		if err := c.replay.Add(transition); err != nil {
			return 0, 0, fmt.Errorf("rollout: %v", err)
		}

		step = next
		episodeReward += next.Reward
		episodeSteps++
		c.state.NumTimesteps++
	}

	if c.verbose > 1 {
		c.logger.WithFields(logrus.Fields{
			"total_t":   c.state.NumTimesteps,
			"episode":   c.state.EpisodeNum,
			"episode_t": episodeSteps,
			"reward":    fmt.Sprintf("%.3f", episodeReward),
		}).Info("episode complete")
	}
	return episodeReward, episodeSteps, nil
}

// act returns the normalized action to take in a rollout. Warm-up
// actions are sampled in environment units and divided by maxAction so
// that every stored action is in the policy's [-1, 1] range.
func (c *CEMRL) act(obs mat.Vector) (*mat.VecDense, error) {
	var action *mat.VecDense
	if c.state.NumTimesteps < c.startTimesteps {
		action = c.sampler.Sample()
		action.ScaleVec(1/c.maxAction, action)
	} else {
		var err error
		action, err = c.actor.SelectAction(obs)
		if err != nil {
			return nil, fmt.Errorf("act: could not select action: %v", err)
		}
	}

	if c.actionNoiseStd > 0 {
		data := action.RawVector().Data
		for i := range data {
			data[i] += c.noise.Rand()
		}
	}
	floatutils.ClipSlice(action.RawVector().Data, -1, 1)

	return action, nil
}

// Predict returns the action in the environment's units that the
// actor takes in observation obs
func (c *CEMRL) Predict(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != c.obsDims {
		return nil, fmt.Errorf("predict: observation should have %v "+
			"features, got %v", c.obsDims, obs.Len())
	}

	action, err := c.actor.SelectAction(obs)
	if err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	action.ScaleVec(c.maxAction, action)
	return action, nil
}

// checkpoint is the gob-encodable state of a CEMRL learner
type checkpoint struct {
	Trainer     []byte
	ES          []byte
	State       State
	Evaluations []Evaluation
}

// GobEncode implements the gob.GobEncoder interface
func (c *CEMRL) GobEncode() ([]byte, error) {
	trainer, err := c.trainer.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	es, err := c.es.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(checkpoint{
		Trainer:     trainer,
		ES:          es,
		State:       c.state,
		Evaluations: c.evaluations,
	})
	if err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The receiver
// must have been constructed with the same configuration as the
// encoded learner.
func (c *CEMRL) GobDecode(in []byte) error {
	if c.trainer == nil {
		return fmt.Errorf("gobDecode: learner must be constructed before " +
			"decoding")
	}

	var cp checkpoint
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&cp); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := c.trainer.GobDecode(cp.Trainer); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if err := c.es.GobDecode(cp.ES); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	c.state = cp.State
	c.evaluations = cp.Evaluations
	return nil
}

// Save saves the learner to path, appending FileExt if path does not
// already have that extension
func (c *CEMRL) Save(path string) error {
	path = withExt(path)

	data, err := c.GobEncode()
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load loads a learner saved with Save into c. The environment the
// learner acts in is not saved, and so the environment argument is
// ignored; c keeps acting in the environment it was constructed with.
func (c *CEMRL) Load(path string, _ env.Environment) error {
	data, err := os.ReadFile(withExt(path))
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := c.GobDecode(data); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}

// Close closes the trainer if it holds resources
func (c *CEMRL) Close() error {
	if closer, ok := c.trainer.(agent.Closer); ok {
		return closer.Close()
	}
	return nil
}

func withExt(path string) string {
	if filepath.Ext(path) != FileExt {
		return path + FileExt
	}
	return path
}
