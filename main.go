package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
	"github.com/samuelfneumann/cemrl/evaluation"
	"github.com/samuelfneumann/cemrl/experiment"
	"github.com/samuelfneumann/cemrl/utils/progressbar"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:])
	case "eval":
		return runEval(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment config file (.json, .yaml)")
	saveDir := fs.String("save-dir", "", "overrides the config's save directory")
	seed := fs.Int64("seed", -1, "overrides the config's seed if >= 0")
	verbose := fs.Int("verbose", -1, "overrides the config's verbosity if >= 0")
	progress := fs.Bool("progress", true, "display a progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *saveDir != "" {
		config.SaveDir = *saveDir
	}
	if *seed >= 0 {
		config.Seed = uint64(*seed)
	}
	if *verbose >= 0 {
		config.AgentConf.Verbose = *verbose
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	exp, err := experiment.New(config, logger)
	if err != nil {
		return err
	}
	defer exp.Close()

	var callback cemrl.Callback
	if *progress {
		bar := progressbar.NewManualProgressBarTo(os.Stderr, 50,
			config.TotalTimesteps)
		callback = func(s *cemrl.State) bool {
			bar.Set(s.NumTimesteps)
			bar.Display()
			return true
		}
		defer func() {
			bar.Set(exp.Learner().State().NumTimesteps)
			bar.Display()
			fmt.Fprintln(os.Stderr)
		}()
	}

	if err := exp.Run(ctx, callback); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.WithField("run_id", exp.ID()).Warn("training interrupted")
			return nil
		}
		return err
	}
	return nil
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment config file (.json, .yaml)")
	modelPath := fs.String("model", "", "model saved by train")
	episodes := fs.Int("episodes", 10, "number of evaluation episodes")
	seed := fs.Uint64("seed", 0, "environment seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" {
		return usageError("eval requires -model")
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	e, _, err := config.EnvConf.Create(*seed)
	if err != nil {
		return err
	}
	learner, err := config.AgentConf.CreateAgent(e, *seed)
	if err != nil {
		return err
	}
	defer learner.Close()

	if err := learner.Load(*modelPath, e); err != nil {
		return err
	}

	mean, std, err := evaluation.EvaluatePolicy(learner, e, *episodes)
	if err != nil {
		return err
	}
	fmt.Printf("mean_reward=%.2f +/- %.2f over %v episodes\n", mean, std,
		*episodes)
	return nil
}

func loadConfig(path string) (experiment.Config, error) {
	if path == "" {
		return experiment.DefaultConfig(), nil
	}
	return experiment.LoadConfig(path)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: cemrl <train|eval> [flags]", msg)
}
