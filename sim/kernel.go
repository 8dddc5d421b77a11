package sim

import (
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/network"
)

// BackendKind enumerates the supported simulator backends. The set is
// closed on purpose: an unsupported backend is a construction-time error,
// not a runtime surprise.
type BackendKind int

const (
	// BackendSocket drives an external microsimulator process over a
	// request/response socket protocol.
	BackendSocket BackendKind = iota
	// BackendNative drives the in-process native-API simulation engine.
	BackendNative
)

func (k BackendKind) String() string {
	switch k {
	case BackendSocket:
		return "socket"
	case BackendNative:
		return "native"
	default:
		return fmt.Sprintf("BackendKind(%d)", int(k))
	}
}

// ParseBackendKind maps a configuration string to a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "socket":
		return BackendSocket, nil
	case "native":
		return BackendNative, nil
	default:
		return 0, &ConfigurationError{Option: "backend", Reason: fmt.Sprintf("unsupported backend %q (want socket or native)", s)}
	}
}

// SimulationKernel is the capability set every backend adapter provides.
// The two variants differ completely in transport but are indistinguishable
// to the Environment and the experiment driver.
type SimulationKernel interface {
	// Start establishes the backend connection and loads the network.
	// Fails with *ConnectionError if the backend is unreachable and with
	// *InitializationError if the network cannot be loaded; in both cases
	// no process or socket is left behind.
	Start(net *network.Network) error

	// Advance progresses simulated time by stepSize seconds and blocks
	// until the backend confirms the step. It reports whether the backend
	// signalled a terminal condition. An I/O failure yields a
	// *SimulationCommunicationError and poisons the kernel: the run must
	// be treated as failed, not retried.
	Advance(stepSize float64) (bool, error)

	// SetSpeeds injects target-speed commands before the next step.
	// A command for a vehicle not in the current snapshot fails with
	// *UnknownEntityError, which the caller may recover from.
	SetSpeeds(cmds map[string]float64) error

	// SimulationTime returns the simulated seconds since the run started.
	SimulationTime() float64

	// Reset re-initializes simulated state without tearing down the
	// backend process.
	Reset() error

	// Terminate tears down the backend connection. Idempotent, and never
	// panics even after a prior failure.
	Terminate()
}

// Kernel bundles the stepping adapter with the vehicle-state namespace, the
// two handles an Environment works through.
type Kernel struct {
	Simulation SimulationKernel
	Vehicle    *VehicleKernel
}

// NewKernel builds the kernel for the requested backend variant. Both
// adapters share one VehicleKernel cache which they refresh after every
// completed step.
func NewKernel(kind BackendKind, cfg SimulationConfig) (*Kernel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	vehicle := newVehicleKernel()
	switch kind {
	case BackendSocket:
		if cfg.Port <= 0 {
			return nil, &ConfigurationError{Option: "port", Reason: "socket backend requires a control port"}
		}
		return &Kernel{Simulation: newSocketKernel(cfg, vehicle), Vehicle: vehicle}, nil
	case BackendNative:
		return &Kernel{Simulation: newNativeKernel(cfg, vehicle), Vehicle: vehicle}, nil
	default:
		return nil, &ConfigurationError{Option: "backend", Reason: fmt.Sprintf("unsupported backend kind %v", kind)}
	}
}
