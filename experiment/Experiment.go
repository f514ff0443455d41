// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/environment/envconfig"
	"github.com/samuelfneumann/cemrl/experiment/checkpointer"
	"github.com/samuelfneumann/cemrl/experiment/tracker"
	"github.com/samuelfneumann/cemrl/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Filenames of the data saved in an experiment's save directory
const (
	ModelFile         = "model"
	MeanReturnFile    = "mean_return.bin"
	MaxReturnFile     = "max_return.bin"
	EpisodeLengthFile = "episode_length.bin"
	EvaluationFile    = "evaluation.bin"
	CheckpointPrefix  = "cem"
)

// Config represents a configuration of an experiment
type Config struct {
	Name           string `json:"Name" yaml:"name"`
	Seed           uint64 `json:"Seed" yaml:"seed"`
	TotalTimesteps int    `json:"TotalTimesteps" yaml:"total_timesteps"`

	// Evaluation of the search distribution mean, disabled if
	// EvalFreq is 0
	EvalFreq      int `json:"EvalFreq" yaml:"eval_freq"`
	NEvalEpisodes int `json:"NEvalEpisodes" yaml:"n_eval_episodes"`

	// Directory to save tracked data, checkpoints, and the final model
	// in. Nothing is saved to disk if SaveDir is empty.
	SaveDir string `json:"SaveDir" yaml:"save_dir"`

	// Number of generations between checkpoints of the search
	// distribution, no checkpoints if 0
	CheckpointEvery int `json:"CheckpointEvery" yaml:"checkpoint_every"`

	// Backend storing run and generation summaries, one of "memory"
	// or "sqlite"
	Store     string `json:"Store" yaml:"store"`
	StorePath string `json:"StorePath" yaml:"store_path"`

	EnvConf   envconfig.Config `json:"EnvConf" yaml:"env"`
	AgentConf cemrl.Config     `json:"AgentConf" yaml:"agent"`
}

// DefaultConfig returns the default experiment configuration, CEM-RL
// on the Pendulum SwingUp task
func DefaultConfig() Config {
	return Config{
		Name:           "cemrl",
		TotalTimesteps: 1_000_000,
		EvalFreq:       10_000,
		NEvalEpisodes:  10,
		Store:          "memory",
		EnvConf:        envconfig.NewConfig(envconfig.Pendulum, envconfig.SwingUp, 200, 0.99),
		AgentConf:      cemrl.DefaultConfig(),
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.TotalTimesteps <= 0 {
		return fmt.Errorf("total timesteps must be positive, got %v",
			c.TotalTimesteps)
	}
	if c.EvalFreq < 0 {
		return fmt.Errorf("eval frequency must be non-negative, got %v",
			c.EvalFreq)
	}
	if c.EvalFreq > 0 && c.NEvalEpisodes <= 0 {
		return fmt.Errorf("must evaluate at least one episode, got %v",
			c.NEvalEpisodes)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint interval must be non-negative, got %v",
			c.CheckpointEvery)
	}
	if c.CheckpointEvery > 0 && c.SaveDir == "" {
		return fmt.Errorf("checkpointing requires a save directory")
	}
	if err := c.EnvConf.Validate(); err != nil {
		return fmt.Errorf("invalid environment config: %v", err)
	}
	if err := c.AgentConf.Validate(); err != nil {
		return fmt.Errorf("invalid agent config: %v", err)
	}
	return nil
}

// LoadConfig loads an experiment configuration from a JSON or YAML
// file. Fields not set in the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file type %q",
			filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w",
			err)
	}
	return config, nil
}

// Experiment runs CEM-RL on a single environment, tracking and saving
// the data generated by each generation
type Experiment struct {
	config  Config
	id      string
	env     env.Environment
	learner *cemrl.CEMRL
	store   storage.Store
	logger  *logrus.Logger

	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// New creates a new Experiment. If logger is nil, a default logger
// writing to stdout is used.
func New(c Config, logger *logrus.Logger) (*Experiment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid config: %v", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
	}

	e, _, err := c.EnvConf.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create environment: %v", err)
	}

	learner, err := c.AgentConf.CreateAgent(e, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create agent: %v", err)
	}
	learner.SetLogger(logger)

	exp := &Experiment{
		config:  c,
		id:      uuid.NewString(),
		env:     e,
		learner: learner,
		logger:  logger,
	}

	if c.SaveDir != "" {
		exp.trackers = []tracker.Tracker{
			tracker.NewMeanReturn(filepath.Join(c.SaveDir, MeanReturnFile)),
			tracker.NewMaxReturn(filepath.Join(c.SaveDir, MaxReturnFile)),
			tracker.NewEpisodeLength(filepath.Join(c.SaveDir,
				EpisodeLengthFile)),
			tracker.NewEvaluation(filepath.Join(c.SaveDir, EvaluationFile)),
		}
	}
	if c.CheckpointEvery > 0 {
		check, err := checkpointer.NewNGeneration(c.CheckpointEvery,
			learner.SearchDistribution(),
			checkpointer.FilenameEnumerator(0,
				filepath.Join(c.SaveDir, CheckpointPrefix), cemrl.FileExt))
		if err != nil {
			learner.Close()
			return nil, fmt.Errorf("new: %v", err)
		}
		exp.checkpointers = append(exp.checkpointers, check)
	}

	// Nothing may fail after the store is opened
	store, err := storage.NewStore(c.Store, c.StorePath)
	if err != nil {
		learner.Close()
		return nil, fmt.Errorf("new: %v", err)
	}
	exp.store = store

	return exp, nil
}

// ID returns the unique ID of the experiment run
func (e *Experiment) ID() string {
	return e.id
}

// Learner returns the learner trained by the experiment
func (e *Experiment) Learner() *cemrl.CEMRL {
	return e.learner
}

// Store returns the store holding the run and generation summaries
func (e *Experiment) Store() storage.Store {
	return e.store
}

// Register adds a new tracker.Tracker to the experiment. Trackers
// must be registered before the experiment is run.
func (e *Experiment) Register(t tracker.Tracker) {
	e.trackers = append(e.trackers, t)
}

// AddCheckpointer adds a new checkpointer.Checkpointer to the
// experiment. Checkpointers must be added before the experiment is run.
func (e *Experiment) AddCheckpointer(c checkpointer.Checkpointer) {
	e.checkpointers = append(e.checkpointers, c)
}

// Run runs the entire experiment, then saves all tracked data and the
// trained model. The callback, if non-nil, is called at the start of
// each generation and may stop the experiment early by returning
// false. Cancelling ctx stops the experiment at the start of the next
// generation, in which case tracked data is still saved and ctx.Err()
// is returned.
func (e *Experiment) Run(ctx context.Context, callback cemrl.Callback) error {
	if err := e.store.Init(ctx); err != nil {
		return fmt.Errorf("run: could not initialize store: %w", err)
	}

	config, err := json.Marshal(e.config)
	if err != nil {
		return fmt.Errorf("run: could not encode config: %v", err)
	}
	run := storage.Run{
		ID:      e.id,
		Name:    e.config.Name,
		Seed:    e.config.Seed,
		Config:  config,
		Started: time.Now().UTC(),
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("run: could not save run: %w", err)
	}

	if e.config.SaveDir != "" {
		if err := os.MkdirAll(e.config.SaveDir, 0o755); err != nil {
			return fmt.Errorf("run: could not create save directory: %v",
				err)
		}
	}

	trackers := append([]tracker.Tracker{
		tracker.NewStore(ctx, e.store, e.id),
	}, e.trackers...)
	tracker.Register(e.learner, trackers...)
	e.learner.Register(e.checkpoint)

	fields := logrus.Fields{
		"run_id": e.id,
		"name":   e.config.Name,
		"seed":   e.config.Seed,
	}
	e.logger.WithFields(fields).Info("starting experiment")

	learnErr := e.learner.Learn(e.config.TotalTimesteps,
		func(s *cemrl.State) bool {
			if ctx.Err() != nil {
				return false
			}
			return callback == nil || callback(s)
		},
		e.config.EvalFreq, e.config.NEvalEpisodes)
	if learnErr != nil {
		e.logger.WithFields(fields).WithError(learnErr).Error(
			"experiment failed")
		return fmt.Errorf("run: %w", learnErr)
	}

	if err := e.save(); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	state := e.learner.State()
	e.logger.WithFields(fields).WithFields(logrus.Fields{
		"num_timesteps": state.NumTimesteps,
		"generations":   state.Generation,
	}).Info("experiment finished")

	return ctx.Err()
}

// checkpoint runs all checkpointers on a completed generation
func (e *Experiment) checkpoint(g cemrl.Generation) error {
	for _, c := range e.checkpointers {
		if err := c.Checkpoint(g); err != nil {
			return err
		}
	}
	return nil
}

// save saves all data tracked by the experiment's trackers as well as
// the trained model
func (e *Experiment) save() error {
	for _, t := range e.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}

	if e.config.SaveDir != "" {
		path := filepath.Join(e.config.SaveDir, ModelFile)
		if err := e.learner.Save(path); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// Close releases the resources held by the experiment
func (e *Experiment) Close() error {
	if err := e.learner.Close(); err != nil {
		return fmt.Errorf("close: %v", err)
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("close: %v", err)
	}
	return nil
}
