package progressbar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetSaturates(t *testing.T) {
	var buf bytes.Buffer
	bar := NewManualProgressBarTo(&buf, 10, 100)

	bar.Set(50)
	assert.InDelta(t, 0.5, bar.Progress(), 1e-12)

	bar.Set(500)
	assert.InDelta(t, 1.0, bar.Progress(), 1e-12)

	bar.Display()
	assert.Contains(t, buf.String(), "100.00%")
}

func TestIncrement(t *testing.T) {
	var buf bytes.Buffer
	bar := NewManualProgressBarTo(&buf, 10, 4)
	bar.Increment()
	bar.Increment()
	assert.InDelta(t, 0.5, bar.Progress(), 1e-12)
}
