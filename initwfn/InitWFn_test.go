package initwfn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

func TestUnmarshalJSON(t *testing.T) {
	var init InitWFn
	data := []byte(`{"Type": "GlorotU", "Config": {"Gain": 1.0}}`)
	require.NoError(t, json.Unmarshal(data, &init))

	assert.Equal(t, GlorotU, init.Type)
	assert.Equal(t, GlorotUConfig{Gain: 1.0}, init.Config)
	assert.NotNil(t, init.InitWFn())
}

func TestUnmarshalYAMLWithoutConfig(t *testing.T) {
	var init InitWFn
	require.NoError(t, yaml.Unmarshal([]byte("Type: Zeroes\n"), &init))

	assert.Equal(t, Zeroes, init.Type)
	assert.Equal(t, ZeroesConfig{}, init.Config)

	values := init.InitWFn()(tensor.Float64, 2, 3)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, values)
}

func TestJSONRoundTrip(t *testing.T) {
	init, err := NewHeN(2.0)
	require.NoError(t, err)

	data, err := json.Marshal(init)
	require.NoError(t, err)

	var decoded InitWFn
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, init.Config, decoded.Config)
}

func TestUnknownType(t *testing.T) {
	var init InitWFn
	err := json.Unmarshal([]byte(`{"Type": "Orthogonal"}`), &init)
	assert.Error(t, err)
}

func TestInvalidConfigs(t *testing.T) {
	_, err := NewGlorotU(0)
	assert.Error(t, err)

	_, err = NewUniform(1, -1)
	assert.Error(t, err)

	var init InitWFn
	err = json.Unmarshal([]byte(`{"Type": "Gaussian",
		"Config": {"Mean": 0, "StdDev": -1}}`), &init)
	assert.Error(t, err)
}
