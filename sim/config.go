package sim

import (
	"path/filepath"
	"time"
)

// SimulationConfig holds the immutable parameters for one backend
// connection. It is fixed at Environment construction and never mutated
// after the backend connects.
type SimulationConfig struct {
	SimStep      float64 // seconds of simulated time per step (must be > 0)
	Render       bool    // ask the backend for a GUI where it has one
	EmissionPath string  // directory for emission logs; empty disables them
	Seed         int64   // master seed for backends with stochastic demand

	// Socket-protocol backend.
	NetworkFile    string        // network file pushed to the simulator at start
	Binary         string        // simulator executable; empty attaches to a running one
	Args           []string      // extra arguments for the executable
	Host           string        // control socket host (default 127.0.0.1)
	Port           int           // control socket port
	ConnectTimeout time.Duration // spawn + dial + handshake budget
	RequestTimeout time.Duration // per-request deadline

	// Native-API backend.
	Subnetwork     string  // subnetwork to activate; empty means whole template
	Replication    string  // replication label, folded into the demand RNG
	CentroidConfig string  // centroid configuration label
	MaxVehicles    int     // injection budget per run (0 = backend default)
	InflowRate     float64 // per-route injections per second (0 = backend default)
}

// validate checks the options every backend needs. Backend-specific
// requirements are checked by the kernel constructors.
func (c *SimulationConfig) validate() error {
	if c.SimStep <= 0 {
		return &ConfigurationError{Option: "sim_step", Reason: "must be a positive number of seconds"}
	}
	return nil
}

// EmissionFilePath returns the conventional emission log location for a
// network: <emissionPath>/<networkName>-emission.xml.
func EmissionFilePath(emissionPath, networkName string) string {
	return filepath.Join(emissionPath, networkName+"-emission.xml")
}
