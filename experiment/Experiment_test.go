package experiment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/td3"
	"github.com/samuelfneumann/cemrl/cem"
	"github.com/samuelfneumann/cemrl/environment/envconfig"
	"github.com/samuelfneumann/cemrl/experiment/checkpointer"
	"github.com/samuelfneumann/cemrl/experiment/tracker"
	"github.com/samuelfneumann/cemrl/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallConfig(t *testing.T, dir string) Config {
	trainer, err := td3.DefaultConfig(1e-3, 4)
	require.NoError(t, err)
	trainer.ActorLayers = []int{8}
	trainer.ActorBiases = []bool{true}
	trainer.ActorActivations = []*network.Activation{network.ReLU()}
	trainer.CriticLayers = []int{8}
	trainer.CriticBiases = []bool{true}
	trainer.CriticActivations = []*network.Activation{network.ReLU()}

	c := DefaultConfig()
	c.Seed = 3
	c.TotalTimesteps = 3 * 4 * 10
	c.EvalFreq = 40
	c.NEvalEpisodes = 1
	c.SaveDir = dir
	c.CheckpointEvery = 2
	c.EnvConf = envconfig.NewConfig(envconfig.Pendulum, envconfig.SwingUp,
		10, 0.99)
	c.AgentConf.PopSize = 4
	c.AgentConf.NGrad = 2
	c.AgentConf.BatchSize = 4
	c.AgentConf.BufferSize = 1000
	c.AgentConf.StartTimesteps = 10
	c.AgentConf.TD3 = &trainer
	return c
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"Name": "json",
		"Seed": 7,
		"TotalTimesteps": 5000,
		"AgentConf": {"PopSize": 6, "NGrad": 3}
	}`), 0o644))

	c, err := LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name)
	assert.Equal(t, uint64(7), c.Seed)
	assert.Equal(t, 5000, c.TotalTimesteps)
	assert.Equal(t, 6, c.AgentConf.PopSize)
	assert.Equal(t, 3, c.AgentConf.NGrad)
	assert.Equal(t, cemrl.DefaultConfig().SigmaInit, c.AgentConf.SigmaInit)
	assert.Equal(t, envconfig.Pendulum, c.EnvConf.Environment)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(
		"name: yaml\n"+
			"total_timesteps: 2000\n"+
			"env:\n"+
			"  environment: MountainCar\n"+
			"  task: Goal\n"+
			"  episode_cutoff: 500\n"+
			"  discount: 1\n"+
			"agent:\n"+
			"  pop_size: 8\n"+
			"  elitism: true\n"), 0o644))

	c, err = LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Name)
	assert.Equal(t, 2000, c.TotalTimesteps)
	assert.Equal(t, envconfig.MountainCar, c.EnvConf.Environment)
	assert.Equal(t, 8, c.AgentConf.PopSize)
	assert.True(t, c.AgentConf.Elitism)
	assert.Equal(t, cemrl.DefaultConfig().NGrad, c.AgentConf.NGrad)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid,
		[]byte(`{"AgentConf": {"PopSize": 4, "NGrad": 5}}`), 0o644))
	_, err := LoadConfig(invalid)
	assert.Error(t, err)

	unsupported := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(unsupported, nil, 0o644))
	_, err = LoadConfig(unsupported)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"NoTimesteps":           func(c *Config) { c.TotalTimesteps = 0 },
		"NoEvalEpisodes":        func(c *Config) { c.NEvalEpisodes = 0 },
		"CheckpointWithoutDir":  func(c *Config) { c.CheckpointEvery = 1 },
		"InvalidEnvironment":    func(c *Config) { c.EnvConf.Task = envconfig.Goal },
		"InvalidAgent":          func(c *Config) { c.AgentConf.PopSize = 1 },
		"NegativeEvalFrequency": func(c *Config) { c.EvalFreq = -1 },
	}

	assert.NoError(t, DefaultConfig().Validate())
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	exp, err := New(smallConfig(t, dir), quietLogger())
	require.NoError(t, err)
	defer exp.Close()

	extra := tracker.NewMeanReturn(filepath.Join(dir, "extra.bin"))
	exp.Register(extra)

	var starts int
	require.NoError(t, exp.Run(context.Background(), func(*cemrl.State) bool {
		starts++
		return true
	}))
	assert.Equal(t, 3, starts)
	assert.Len(t, extra.Data(), 3)

	for _, name := range []string{MeanReturnFile, MaxReturnFile,
		EpisodeLengthFile, EvaluationFile, ModelFile + cemrl.FileExt,
		CheckpointPrefix + "1" + cemrl.FileExt} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	lengths, err := tracker.LoadData(filepath.Join(dir, EpisodeLengthFile))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10, 10}, lengths)

	evals, err := tracker.LoadData(filepath.Join(dir, EvaluationFile))
	require.NoError(t, err)
	assert.Len(t, evals, 2)

	ctx := context.Background()
	run, ok, err := exp.Store().GetRun(ctx, exp.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cemrl", run.Name)

	records, err := exp.Store().ListGenerations(ctx, exp.ID())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 120, records[2].NumTimesteps)
	assert.False(t, records[0].Evaluated)
	assert.True(t, records[1].Evaluated)

	es, err := cem.New(mat.NewVecDense(1, nil), 1, 4, 0, 0, true, false, 0)
	require.NoError(t, err)
	require.NoError(t, checkpointer.Load(filepath.Join(dir,
		CheckpointPrefix+"1"+cemrl.FileExt), es))
	assert.Equal(t, 2, es.Generations())
}

func TestNewRejectsUnknownStore(t *testing.T) {
	c := smallConfig(t, t.TempDir())
	c.Store = "postgres"

	exp, err := New(c, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, exp)
}

func TestRunCancelled(t *testing.T) {
	exp, err := New(smallConfig(t, t.TempDir()), quietLogger())
	require.NoError(t, err)
	defer exp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = exp.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, exp.Learner().State().NumTimesteps)
}
