package tracker

import (
	"fmt"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
)

// EpisodeLength tracks and saves the mean length of the episodes
// rolled out by each population in an experiment
type EpisodeLength struct {
	episodeLengths []float64
	filename       string
}

// NewEpisodeLength returns a new EpisodeLength Tracker which will
// save its data at the specified location filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track caches the mean episode length of the generation
func (e *EpisodeLength) Track(g cemrl.Generation) error {
	if len(g.Fitnesses) == 0 {
		return fmt.Errorf("track: generation %v has no episodes", g.Number)
	}
	length := float64(g.ActorSteps) / float64(len(g.Fitnesses))
	e.episodeLengths = append(e.episodeLengths, length)
	return nil
}

// Data returns the data tracked so far
func (e *EpisodeLength) Data() []float64 {
	return append([]float64(nil), e.episodeLengths...)
}

// Save saves the data tracked by the EpisodeLength Tracker to disk
func (e *EpisodeLength) Save() error {
	if err := saveData(e.filename, e.episodeLengths); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}
