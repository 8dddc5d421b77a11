package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendKind(t *testing.T) {
	kind, err := ParseBackendKind("socket")
	require.NoError(t, err)
	assert.Equal(t, BackendSocket, kind)

	kind, err = ParseBackendKind("native")
	require.NoError(t, err)
	assert.Equal(t, BackendNative, kind)

	_, err = ParseBackendKind("quantum")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "backend", cfgErr.Option)
}

func TestNewKernel_UnsupportedKindIsConstructionError(t *testing.T) {
	_, err := NewKernel(BackendKind(99), SimulationConfig{SimStep: 0.5})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewKernel_RejectsNonPositiveSimStep(t *testing.T) {
	_, err := NewKernel(BackendNative, SimulationConfig{SimStep: 0})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sim_step", cfgErr.Option)
}

func TestNewKernel_SocketRequiresPort(t *testing.T) {
	_, err := NewKernel(BackendSocket, SimulationConfig{SimStep: 0.5})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "port", cfgErr.Option)
}

func TestNewKernel_VariantsShareOneVehicleCache(t *testing.T) {
	k, err := NewKernel(BackendNative, SimulationConfig{SimStep: 0.5})
	require.NoError(t, err)
	require.NotNil(t, k.Vehicle)
	assert.IsType(t, &NativeKernel{}, k.Simulation)

	k, err = NewKernel(BackendSocket, SimulationConfig{SimStep: 0.5, Port: 9999})
	require.NoError(t, err)
	assert.IsType(t, &SocketKernel{}, k.Simulation)
}

func TestBackendKindString(t *testing.T) {
	assert.Equal(t, "socket", BackendSocket.String())
	assert.Equal(t, "native", BackendNative.String())
}
