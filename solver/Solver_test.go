package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestJSONRoundTrip(t *testing.T) {
	s, err := NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Solver
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Adam, decoded.Type)
	assert.Equal(t, s.Config, decoded.Config)
	assert.NotNil(t, decoded.Solver)
}

func TestUnmarshalYAML(t *testing.T) {
	doc := `
Type: Vanilla
Config:
  StepSize: 0.01
  Batch: 1
  Clip: 0
`
	var s Solver
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, Vanilla, s.Type)
	assert.Equal(t, VanillaConfig{StepSize: 0.01, Batch: 1}, s.Config)
}

func TestUnmarshalUnknownType(t *testing.T) {
	var s Solver
	err := json.Unmarshal([]byte(`{"Type": "RMSProp", "Config": {}}`), &s)
	assert.Error(t, err)
}

func TestCloneHasFreshState(t *testing.T) {
	s, err := NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)

	clone := s.Clone()
	assert.Equal(t, s.Config, clone.Config)
	assert.NotSame(t, s.Solver, clone.Solver)
}

func TestInvalidConfigs(t *testing.T) {
	_, err := NewDefaultAdam(0, 1)
	assert.Error(t, err)

	_, err = NewAdam(1e-3, 1e-8, 1.0, 0.999, 1)
	assert.Error(t, err)

	_, err = NewVanilla(1e-3, 0, 0)
	assert.Error(t, err)

	var s Solver
	err = json.Unmarshal([]byte(`{"Type": "Vanilla",
		"Config": {"StepSize": -1, "Batch": 1}}`), &s)
	assert.Error(t, err)
}
