// Package checkpointer implements checkpointing of serializable
// objects, such as search distributions and learners, during an
// experiment
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/cemrl"
)

// Checkpointer checkpoints/saves serializable objects based on
// completed generations
type Checkpointer interface {
	Checkpoint(cemrl.Generation) error
}

// Load loads an object checkpointed to filename into object
func Load(filename string, object gob.GobDecoder) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := object.GobDecode(data); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	return nil
}

// FilenameEnumerator returns a function which will return filenames
// with a counter integer suffix. Each time the returned function is
// called, the filename counter suffix will be one higher than on the
// previous call. The filename parameter is the full filename with its
// path, while the extension parameter determines the file extension.
func FilenameEnumerator(start int, filename, extension string) func() string {
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v%v%v", filename, i, extension)
	}
}

// FileTimer returns a function which will append to a filename the
// number of nanoseconds since January 1, 1970.
func FileTimer(filename, extension string) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, time.Now().UnixNano(),
			extension)
	}
}
