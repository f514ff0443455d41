// Package storage persists experiment runs and their per-generation
// summaries
package storage

import (
	"context"
	"time"
)

// Run describes a single experiment run
type Run struct {
	ID      string
	Name    string
	Seed    uint64
	Config  []byte // JSON encoded experiment configuration
	Started time.Time
}

// GenerationRecord summarizes one generation of a run
type GenerationRecord struct {
	RunID        string
	Number       int
	NumTimesteps int
	EpisodeNum   int
	MeanFitness  float64
	MaxFitness   float64

	Evaluated bool
	EvalMean  float64
	EvalStd   float64
}

// Store defines persistence operations for runs and generations.
// Generations are listed in the order they were appended.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	AppendGeneration(ctx context.Context, record GenerationRecord) error
	ListGenerations(ctx context.Context, runID string) ([]GenerationRecord, error)
	Close() error
}
