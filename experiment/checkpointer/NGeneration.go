package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
)

// nGeneration implements checkpointing every N generations
type nGeneration struct {
	interval int
	object   gob.GobEncoder // Object to save

	// filename returns the filename of the file to save the object in.
	//
	// If each checkpoint should be saved in a separate file with each
	// file having an incremented number as a suffix (e.g. file1.bin,
	// file2.bin, ..., fileK.bin), use FilenameEnumerator. If the
	// filenames do not matter, use FileTimer:
	//
	//	n := NewNGeneration(10, object, FileTimer("filename", ".bin"))
	filename func() string
}

// NewNGeneration returns a checkpointer that checkpoints object every
// n generations
func NewNGeneration(n int, object gob.GobEncoder,
	filename func() string) (Checkpointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("newNGeneration: interval must be positive, "+
			"got %v", n)
	}
	return &nGeneration{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the checkpointer's object if the generation number
// is a multiple of the checkpoint interval
func (n *nGeneration) Checkpoint(g cemrl.Generation) error {
	if g.Number%n.interval != 0 {
		return nil
	}

	data, err := n.object.GobEncode()
	if err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := os.WriteFile(n.filename(), data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return nil
}
