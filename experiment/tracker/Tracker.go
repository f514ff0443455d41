// Package tracker implements Trackers, which track and save data
// generated by each generation of an experiment
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
)

// Tracker keeps track of experiment data for each generation and
// saves the data after the experiment has finished
type Tracker interface {
	Track(g cemrl.Generation) error
	Save() error
}

// Registrar is a learner which notifies registered hooks of each
// completed generation
type Registrar interface {
	Register(h cemrl.Hook)
}

// Register registers trackers with a learner so that each tracker
// tracks every generation completed by the learner
func Register(r Registrar, trackers ...Tracker) {
	r.Register(func(g cemrl.Generation) error {
		for _, t := range trackers {
			if err := t.Track(g); err != nil {
				return fmt.Errorf("track: %v", err)
			}
		}
		return nil
	})
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %v", err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}

// saveData gob encodes data to filename
func saveData(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not open save file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("could not encode data: %v", err)
	}
	return nil
}
