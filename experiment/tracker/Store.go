package tracker

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
	"github.com/samuelfneumann/cemrl/storage"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Store tracks generation summaries by appending them to a
// storage.Store as they complete. Nothing is cached, so Save is a
// no-op.
type Store struct {
	ctx   context.Context
	store storage.Store
	runID string
}

// NewStore returns a new Store Tracker which appends the generations
// of run runID to store. The run must already be saved in store.
func NewStore(ctx context.Context, store storage.Store, runID string) *Store {
	return &Store{ctx: ctx, store: store, runID: runID}
}

func (s *Store) Track(g cemrl.Generation) error {
	if len(g.Fitnesses) == 0 {
		return fmt.Errorf("track: generation %v has no returns", g.Number)
	}

	record := storage.GenerationRecord{
		RunID:        s.runID,
		Number:       g.Number,
		NumTimesteps: g.NumTimesteps,
		EpisodeNum:   g.EpisodeNum,
		MeanFitness:  stat.Mean(g.Fitnesses, nil),
		MaxFitness:   floats.Max(g.Fitnesses),
	}
	if g.Evaluation != nil {
		record.Evaluated = true
		record.EvalMean = g.Evaluation.Mean
		record.EvalStd = g.Evaluation.Std
	}

	if err := s.store.AppendGeneration(s.ctx, record); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

func (s *Store) Save() error {
	return nil
}
