package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `
backend: socket
network_file: /nets/i210.net.xml
num_runs: 2
num_steps: 500
sim_step: 0.5
render: true
emission_path: ./data
convert_to_csv: true
seed: 7
socket:
  binary: /usr/bin/microsim
  port: 8813
  connect_timeout: 15s
native:
  subnetwork: "Subnetwork 8037060"
  replication: "Micro Profiled PM 16-21"
  centroid_config: "Centroid Configuration 8037063"
`

func TestLoadExperimentSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSpec), 0o644))

	spec, err := LoadExperimentSpec(path)
	require.NoError(t, err)

	assert.Equal(t, "socket", spec.Backend)
	assert.Equal(t, 2, spec.NumRuns)
	assert.Equal(t, 500, spec.NumSteps)
	assert.Equal(t, 0.5, spec.SimStep)
	assert.True(t, spec.Convert)
	assert.Equal(t, "Subnetwork 8037060", spec.Native.Subnetwork)
	assert.Equal(t, 8813, spec.Socket.Port)
}

func TestExperimentSpec_SimulationConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSpec), 0o644))
	spec, err := LoadExperimentSpec(path)
	require.NoError(t, err)

	cfg, err := spec.SimulationConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.SimStep)
	assert.Equal(t, "/nets/i210.net.xml", cfg.NetworkFile)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "Micro Profiled PM 16-21", cfg.Replication)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestExperimentSpec_BadDurationRejected(t *testing.T) {
	spec := &ExperimentSpec{}
	spec.Socket.ConnectTimeout = "soon"
	_, err := spec.SimulationConfig()
	assert.ErrorContains(t, err, "connect_timeout")
}

func TestLoadExperimentSpec_MissingFile(t *testing.T) {
	_, err := LoadExperimentSpec(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestLoadExperimentSpec_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0o644))
	_, err := LoadExperimentSpec(path)
	assert.ErrorContains(t, err, "parse experiment spec")
}
