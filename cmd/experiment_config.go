package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/traffic-sim/traffic-sim/sim"
)

// ExperimentSpec is the YAML experiment description accepted by
// `traffic-sim run --config`. CLI flags override file values.
type ExperimentSpec struct {
	Backend     string  `yaml:"backend"`      // "socket" or "native"
	NetworkFile string  `yaml:"network_file"` // network description XML
	NumRuns     int     `yaml:"num_runs"`
	NumSteps    int     `yaml:"num_steps"`
	SimStep     float64 `yaml:"sim_step"` // seconds per tick
	Render      bool    `yaml:"render"`
	Emission    string  `yaml:"emission_path,omitempty"`
	Convert     bool    `yaml:"convert_to_csv,omitempty"`
	Seed        int64   `yaml:"seed,omitempty"`

	Socket struct {
		Binary         string   `yaml:"binary,omitempty"`
		Args           []string `yaml:"args,omitempty"`
		Host           string   `yaml:"host,omitempty"`
		Port           int      `yaml:"port,omitempty"`
		ConnectTimeout string   `yaml:"connect_timeout,omitempty"` // Go duration string
	} `yaml:"socket,omitempty"`

	Native struct {
		Subnetwork     string  `yaml:"subnetwork,omitempty"`
		Replication    string  `yaml:"replication,omitempty"`
		CentroidConfig string  `yaml:"centroid_config,omitempty"`
		MaxVehicles    int     `yaml:"max_vehicles,omitempty"`
		InflowRate     float64 `yaml:"inflow_rate,omitempty"`
	} `yaml:"native,omitempty"`
}

// LoadExperimentSpec reads and validates an experiment YAML file.
func LoadExperimentSpec(path string) (*ExperimentSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment spec: %w", err)
	}
	spec := &ExperimentSpec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("parse experiment spec %s: %w", path, err)
	}
	return spec, nil
}

// SimulationConfig translates the experiment spec into kernel configuration.
func (s *ExperimentSpec) SimulationConfig() (sim.SimulationConfig, error) {
	cfg := sim.SimulationConfig{
		SimStep:        s.SimStep,
		Render:         s.Render,
		EmissionPath:   s.Emission,
		Seed:           s.Seed,
		NetworkFile:    s.NetworkFile,
		Binary:         s.Socket.Binary,
		Args:           s.Socket.Args,
		Host:           s.Socket.Host,
		Port:           s.Socket.Port,
		Subnetwork:     s.Native.Subnetwork,
		Replication:    s.Native.Replication,
		CentroidConfig: s.Native.CentroidConfig,
		MaxVehicles:    s.Native.MaxVehicles,
		InflowRate:     s.Native.InflowRate,
	}
	if s.Socket.ConnectTimeout != "" {
		d, err := time.ParseDuration(s.Socket.ConnectTimeout)
		if err != nil {
			return cfg, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}
