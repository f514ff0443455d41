package cemrl

import (
	"bytes"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/cemrl/agent"
	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/td3"
	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/cemrl/expreplay"
	"github.com/samuelfneumann/cemrl/initwfn"
	"github.com/samuelfneumann/cemrl/network"
	"github.com/samuelfneumann/cemrl/solver"
	ts "github.com/samuelfneumann/cemrl/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	episodeLength = 5
	maxAction     = 2.0
	numParams     = 3
)

// lineEnv has a one-dimensional observation which counts the steps of
// the episode. The reward for each step is the first action dimension
// taken.
type lineEnv struct {
	length  int
	current ts.TimeStep
	actions []float64
}

func newLineEnv(length int) *lineEnv {
	return &lineEnv{length: length}
}

func (l *lineEnv) Reset() (ts.TimeStep, error) {
	l.current = ts.New(ts.First, 0, 1, mat.NewVecDense(1, nil), 0)
	return l.current, nil
}

func (l *lineEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	l.actions = append(l.actions, a.AtVec(0))
	n := l.current.Number + 1
	obs := mat.NewVecDense(1, []float64{float64(n)})

	step := ts.New(ts.Mid, a.AtVec(0), 1, obs, n)
	if n >= l.length {
		step.StepType = ts.Last
		step.SetEnd(ts.TerminalStateReached)
	}
	l.current = step
	return step, step.Last(), nil
}

func (l *lineEnv) CurrentTimeStep() ts.TimeStep { return l.current }

func (l *lineEnv) DiscountSpec() env.Spec {
	bound := mat.NewVecDense(1, []float64{1})
	return env.NewSpec(mat.NewVecDense(1, nil), env.Discount, bound, bound,
		env.Continuous)
}

func (l *lineEnv) ObservationSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(1, nil), env.Observation,
		mat.NewVecDense(1, []float64{0}),
		mat.NewVecDense(1, []float64{float64(l.length)}), env.Continuous)
}

func (l *lineEnv) ActionSpec() env.Spec {
	return env.NewSpec(mat.NewVecDense(1, nil), env.Action,
		mat.NewVecDense(1, []float64{-maxAction}),
		mat.NewVecDense(1, []float64{maxAction}), env.Continuous)
}

// limitedEnv is a lineEnv which exposes a step limit. Episodes whose
// length equals the limit are cut off rather than terminated.
type limitedEnv struct {
	*lineEnv
	limit int
}

func (l limitedEnv) MaxEpisodeSteps() int { return l.limit }

// fakeActor selects the first parameter as its action
type fakeActor struct {
	params  *mat.VecDense
	loads   []*mat.VecDense
	selects int
}

func (f *fakeActor) SelectAction(mat.Vector) (*mat.VecDense, error) {
	f.selects++
	return mat.NewVecDense(1, []float64{f.params.AtVec(0)}), nil
}

func (f *fakeActor) LoadFromVector(v mat.Vector) error {
	loaded := mat.VecDenseCopyOf(v)
	f.loads = append(f.loads, loaded)
	f.params = mat.VecDenseCopyOf(v)
	return nil
}

func (f *fakeActor) ParametersToVector() (*mat.VecDense, error) {
	return mat.VecDenseCopyOf(f.params), nil
}

func (f *fakeActor) MaxAction() float64 { return maxAction }

type countingLoader struct {
	loads int
}

func (c *countingLoader) LoadFromVector(mat.Vector) error {
	c.loads++
	return nil
}

// fakeTrainer adds 1 to every actor parameter on each actor update
type fakeTrainer struct {
	actor       *fakeActor
	target      *countingLoader
	criticCalls int
	actorCalls  int
	resets      int
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{
		actor:  &fakeActor{params: mat.NewVecDense(numParams, nil)},
		target: &countingLoader{},
	}
}

func (f *fakeTrainer) TrainCritic(expreplay.Batch) error {
	f.criticCalls++
	return nil
}

func (f *fakeTrainer) TrainActor(expreplay.Batch) error {
	f.actorCalls++
	data := f.actor.params.RawVector().Data
	for i := range data {
		data[i]++
	}
	return nil
}

func (f *fakeTrainer) ResetActorSolver()               { f.resets++ }
func (f *fakeTrainer) Actor() agent.VectorPolicy       { return f.actor }
func (f *fakeTrainer) ActorTarget() agent.VectorLoader { return f.target }

func (f *fakeTrainer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(f.actor.params.RawVector().Data)
	return buf.Bytes(), err
}

func (f *fakeTrainer) GobDecode(in []byte) error {
	var data []float64
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&data); err != nil {
		return err
	}
	f.actor.params = mat.NewVecDense(len(data), data)
	return nil
}

// recordingReplay records every transition added to it
type recordingReplay struct {
	added []ts.Transition
}

func (r *recordingReplay) Add(t ts.Transition) error {
	r.added = append(r.added, t)
	return nil
}

func (r *recordingReplay) Sample() (expreplay.Batch, error) {
	return expreplay.Batch{Size: 1}, nil
}

func (r *recordingReplay) Capacity() int    { return len(r.added) }
func (r *recordingReplay) MaxCapacity() int { return math.MaxInt32 }
func (r *recordingReplay) MinCapacity() int { return 1 }
func (r *recordingReplay) BatchSize() int   { return 1 }

func testConfig() Config {
	c := DefaultConfig()
	c.PopSize = 4
	c.NGrad = 2
	c.StartTimesteps = 0
	return c
}

type fixture struct {
	env     env.Environment
	trainer *fakeTrainer
	replay  *recordingReplay
	learner *CEMRL
}

func newFixture(t *testing.T, e env.Environment, c Config) fixture {
	trainer := newFakeTrainer()
	replay := &recordingReplay{}
	learner, err := NewWith(e, c, trainer, replay, 1)
	require.NoError(t, err)
	return fixture{e, trainer, replay, learner}
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"NGradAbovePopSize":    func(c *Config) { c.NGrad = c.PopSize + 1 },
		"NegativeNGrad":        func(c *Config) { c.NGrad = -1 },
		"SmallPopulation":      func(c *Config) { c.PopSize = 1 },
		"ZeroSigma":            func(c *Config) { c.SigmaInit = 0 },
		"ZeroPolicyFreq":       func(c *Config) { c.PolicyFreq = 0 },
		"ZeroBatch":            func(c *Config) { c.BatchSize = 0 },
		"ZeroBuffer":           func(c *Config) { c.BufferSize = 0 },
		"NegativeNoise":        func(c *Config) { c.ActionNoiseStd = -1 },
		"NegativeStartSteps":   func(c *Config) { c.StartTimesteps = -1 },
		"NonPositiveLearnRate": func(c *Config) { c.LearningRate = 0 },
	}

	assert.NoError(t, DefaultConfig().Validate())
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			modify(&c)
			assert.Error(t, c.Validate())

			_, err := NewWith(newLineEnv(episodeLength), c, newFakeTrainer(),
				&recordingReplay{}, 1)
			assert.Error(t, err)
		})
	}
}

func TestAntitheticFollowsPopulationParity(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.Antithetic())

	c.PopSize = 5
	assert.False(t, c.Antithetic())
	_, err := NewWith(newLineEnv(episodeLength), c, newFakeTrainer(),
		&recordingReplay{}, 1)
	assert.NoError(t, err)
}

func TestFirstGenerationSkipsGradientPhase(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())
	require.NoError(t, f.learner.Learn(1, nil, 0, 0))

	assert.Equal(t, 0, f.trainer.criticCalls)
	assert.Equal(t, 0, f.trainer.actorCalls)
	assert.Equal(t, 0, f.trainer.resets)

	state := f.learner.State()
	assert.Equal(t, 4*episodeLength, state.NumTimesteps)
	assert.Equal(t, 4*episodeLength, state.ActorSteps)
	assert.Equal(t, 4, state.EpisodeNum)
	assert.Equal(t, 1, state.Generation)
	assert.Len(t, f.replay.added, 4*episodeLength)
}

func TestGradientPhase(t *testing.T) {
	c := testConfig()
	f := newFixture(t, newLineEnv(episodeLength), c)

	// Two generations: the second trains on the first's experience
	require.NoError(t, f.learner.Learn(4*episodeLength+1, nil, 0, 0))
	require.Equal(t, 2, f.learner.State().Generation)

	iterations := 2 * (4 * episodeLength / c.NGrad)
	assert.Equal(t, c.NGrad*iterations, f.trainer.criticCalls)
	assert.Equal(t, c.NGrad*iterations/c.PolicyFreq, f.trainer.actorCalls)
	assert.Equal(t, c.NGrad, f.trainer.resets)
	assert.Equal(t, c.NGrad, f.trainer.target.loads)

	// Generation 1 rollouts (4 loads), then generation 2 training
	// loads, generation 2 rollouts and the final load of the mean
	loads := f.trainer.actor.loads
	require.Len(t, loads, 4+c.NGrad+4+1)
	trainLoads := loads[4 : 4+c.NGrad]
	rolloutLoads := loads[4+c.NGrad : 4+c.NGrad+4]

	updates := float64(iterations / c.PolicyFreq)
	for i := 0; i < c.NGrad; i++ {
		want := mat.NewVecDense(numParams, nil)
		for j := 0; j < numParams; j++ {
			want.SetVec(j, trainLoads[i].AtVec(j)+updates)
		}
		assert.True(t, mat.EqualApprox(want, rolloutLoads[i], 1e-12),
			"member %v was not overwritten by its trained parameters", i)
	}

	assert.True(t, mat.EqualApprox(f.learner.Mean(), loads[len(loads)-1],
		1e-12))
}

func TestNoGradientMembers(t *testing.T) {
	c := testConfig()
	c.NGrad = 0
	f := newFixture(t, newLineEnv(episodeLength), c)

	require.NoError(t, f.learner.Learn(3*4*episodeLength, nil, 0, 0))
	assert.Equal(t, 0, f.trainer.criticCalls)
	assert.Equal(t, 3, f.learner.State().Generation)
}

func TestWarmUpUsesRandomActions(t *testing.T) {
	c := testConfig()
	c.StartTimesteps = 7
	e := newLineEnv(episodeLength)
	f := newFixture(t, e, c)

	require.NoError(t, f.learner.Learn(1, nil, 0, 0))
	assert.Equal(t, 4*episodeLength-c.StartTimesteps, f.trainer.actor.selects)

	for i, a := range e.actions {
		assert.LessOrEqual(t, math.Abs(a), maxAction, "action %v", i)
	}
	require.Len(t, f.replay.added, len(e.actions))
	for i, tr := range f.replay.added {
		assert.LessOrEqual(t, math.Abs(tr.Action.AtVec(0)), 1.0,
			"transition %v", i)
		assert.InDelta(t, maxAction*tr.Action.AtVec(0), e.actions[i], 1e-12,
			"transition %v", i)
	}
}

func TestDoneFlags(t *testing.T) {
	t.Run("Terminal", func(t *testing.T) {
		f := newFixture(t, newLineEnv(episodeLength), testConfig())
		require.NoError(t, f.learner.Learn(1, nil, 0, 0))

		for i, tr := range f.replay.added {
			want := 0.0
			if (i+1)%episodeLength == 0 {
				want = 1.0
			}
			assert.Equal(t, want, tr.Done, "transition %v", i)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		e := limitedEnv{newLineEnv(episodeLength), episodeLength}
		f := newFixture(t, e, testConfig())
		require.NoError(t, f.learner.Learn(1, nil, 0, 0))

		require.Len(t, f.replay.added, 4*episodeLength)
		for i, tr := range f.replay.added {
			assert.Equal(t, 0.0, tr.Done, "transition %v", i)
		}
	})

	t.Run("TerminalBeforeLimit", func(t *testing.T) {
		e := limitedEnv{newLineEnv(150), 200}
		f := newFixture(t, e, testConfig())
		require.NoError(t, f.learner.Learn(1, nil, 0, 0))

		require.Len(t, f.replay.added, 4*150)
		for i, tr := range f.replay.added {
			want := 0.0
			if (i+1)%150 == 0 {
				want = 1.0
			}
			assert.Equal(t, want, tr.Done, "transition %v", i)
		}
	})
}

func TestActionNoiseIsClipped(t *testing.T) {
	c := testConfig()
	c.ActionNoiseStd = 10
	e := newLineEnv(episodeLength)
	f := newFixture(t, e, c)

	require.NoError(t, f.learner.Learn(1, nil, 0, 0))

	clipped := 0
	for _, tr := range f.replay.added {
		a := tr.Action.AtVec(0)
		assert.LessOrEqual(t, math.Abs(a), 1.0)
		if math.Abs(a) == 1.0 {
			clipped++
		}
	}
	assert.Greater(t, clipped, 0)

	for _, a := range e.actions {
		assert.LessOrEqual(t, math.Abs(a), maxAction)
	}
}

func TestFitnessesAlignWithPopulation(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())

	var gens []Generation
	f.learner.Register(func(g Generation) error {
		gens = append(gens, g)
		return nil
	})
	require.NoError(t, f.learner.Learn(1, nil, 0, 0))

	require.Len(t, gens, 1)
	require.Len(t, gens[0].Fitnesses, 4)
	for i, fit := range gens[0].Fitnesses {
		p := f.trainer.actor.loads[i].AtVec(0)
		p = math.Max(-1, math.Min(1, p))
		assert.InDelta(t, episodeLength*maxAction*p, fit, 1e-9,
			"member %v", i)
	}
	assert.Nil(t, gens[0].Evaluation)
}

func TestEvaluationFrequency(t *testing.T) {
	c := testConfig()
	c.NGrad = 1
	f := newFixture(t, newLineEnv(episodeLength), c)

	stepsPerGen := 4 * episodeLength
	evalFreq := 30
	var tse []int
	callback := func(s *State) bool {
		tse = append(tse, s.TimestepsSinceEval)
		return true
	}
	require.NoError(t, f.learner.Learn(4*stepsPerGen, callback, evalFreq, 3))

	// Evaluations happen at the start of the third and fourth
	// generations and do not count as rollout steps
	evals := f.learner.Evaluations()
	require.Len(t, evals, 2)
	assert.Equal(t, 2*stepsPerGen, evals[0].NumTimesteps)
	assert.Equal(t, 3*stepsPerGen, evals[1].NumTimesteps)

	assert.Equal(t, []int{0, 20, 40, 30}, tse)
	state := f.learner.State()
	assert.Equal(t, 4*stepsPerGen, state.NumTimesteps)
	assert.Equal(t, 20, state.TimestepsSinceEval)
	assert.Len(t, f.replay.added, 4*stepsPerGen)
}

func TestEvaluationRequiresEpisodes(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())
	assert.Error(t, f.learner.Learn(1, nil, 10, 0))
}

func TestCallbackStopsLearning(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())

	calls := 0
	callback := func(s *State) bool {
		calls++
		return s.Generation < 3
	}
	require.NoError(t, f.learner.Learn(1000, callback, 0, 0))

	assert.Equal(t, 4, calls)
	assert.Equal(t, 3*4*episodeLength, f.learner.State().NumTimesteps)
	assert.Equal(t, 3, f.learner.State().Generation)
}

func TestHookErrorStopsLearning(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())
	f.learner.Register(func(Generation) error {
		return os.ErrClosed
	})

	err := f.learner.Learn(1000, nil, 0, 0)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Equal(t, 1, f.learner.State().Generation)
}

func TestPredictScalesActions(t *testing.T) {
	f := newFixture(t, newLineEnv(episodeLength), testConfig())
	require.NoError(t, f.trainer.actor.LoadFromVector(
		mat.NewVecDense(numParams, []float64{0.25, 0, 0})))

	action, err := f.learner.Predict(mat.NewVecDense(1, nil))
	require.NoError(t, err)
	assert.Equal(t, 0.5, action.AtVec(0))

	_, err = f.learner.Predict(mat.NewVecDense(2, nil))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	c := testConfig()
	f := newFixture(t, newLineEnv(episodeLength), c)
	require.NoError(t, f.learner.Learn(3*4*episodeLength, nil, 2, 1))

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, f.learner.Save(path))
	_, err := os.Stat(path + FileExt)
	require.NoError(t, err)

	restored := newFixture(t, newLineEnv(episodeLength), c)
	require.NoError(t, restored.learner.Load(path+FileExt, nil))

	assert.Equal(t, f.learner.State(), restored.learner.State())
	assert.Equal(t, f.learner.Evaluations(), restored.learner.Evaluations())
	assert.True(t, mat.EqualApprox(f.learner.Mean(), restored.learner.Mean(),
		1e-12))
	assert.True(t, mat.EqualApprox(f.trainer.actor.params,
		restored.trainer.actor.params, 1e-12))

	assert.Error(t, restored.learner.Load(filepath.Join(t.TempDir(),
		"missing"), nil))
}

func TestLearnWithTD3(t *testing.T) {
	bounds := []r1.Interval{{Min: -math.Pi, Max: math.Pi}, {Min: -1, Max: 1}}
	task := pendulum.NewSwingUp(env.NewUniformStarter(bounds, 3), 10)
	e, _, err := pendulum.New(task, 0.99)
	require.NoError(t, err)

	init, err := initwfn.NewGlorotU(1.0)
	require.NoError(t, err)
	actorSolver, err := solver.NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)
	criticSolver, err := solver.NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)

	c := DefaultConfig()
	c.PopSize = 4
	c.NGrad = 2
	c.BatchSize = 4
	c.BufferSize = 100
	c.StartTimesteps = 10
	c.TD3 = &td3.Config{
		ActorLayers:       []int{8},
		ActorBiases:       []bool{true},
		ActorActivations:  []*network.Activation{network.ReLU()},
		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},
		InitWFn:           init,
		ActorSolver:       actorSolver,
		CriticSolver:      criticSolver,
		Gamma:             0.99,
		Tau:               0.005,
		PolicyNoise:       0.2,
		NoiseClip:         0.5,
	}

	learner, err := c.CreateAgent(e, 1)
	require.NoError(t, err)
	defer learner.Close()

	assert.Equal(t, c.BatchSize, learner.replay.BatchSize())
	assert.Equal(t, c.BufferSize, learner.replay.MaxCapacity())
	assert.Equal(t, 1, learner.replay.MinCapacity())

	require.NoError(t, learner.Learn(2*4*10, nil, 40, 2))
	assert.Equal(t, 80, learner.replay.Capacity())
	state := learner.State()
	assert.Equal(t, 80, state.NumTimesteps)
	assert.Equal(t, 2, state.Generation)
	assert.Len(t, learner.Evaluations(), 1)

	action, err := learner.Predict(e.CurrentTimeStep().Observation)
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(action.AtVec(0)), pendulum.TorqueBound)

	path := filepath.Join(t.TempDir(), "cemrl")
	require.NoError(t, learner.Save(path))

	restored, err := c.CreateAgent(e, 2)
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path, e))
	assert.True(t, mat.EqualApprox(learner.Mean(), restored.Mean(), 1e-12))

	got, err := restored.Predict(e.CurrentTimeStep().Observation)
	require.NoError(t, err)
	assert.InDelta(t, action.AtVec(0), got.AtVec(0), 1e-9)
}
