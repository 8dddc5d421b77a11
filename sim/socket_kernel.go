package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/traffic-sim/traffic-sim/sim/backend"
	"github.com/traffic-sim/traffic-sim/sim/network"
)

// SocketKernel adapts the socket-protocol backend: every operation becomes
// a request/response exchange against the external simulator process owned
// by a backend.Handle.
type SocketKernel struct {
	cfg     SimulationConfig
	vehicle *VehicleKernel

	// launch is a seam for tests; production code always goes through
	// backend.Launch.
	launch func(backend.Config) (*backend.Handle, error)

	handle     *backend.Handle
	netName    string
	simTime    float64
	failed     bool
	terminated bool
}

func newSocketKernel(cfg SimulationConfig, vehicle *VehicleKernel) *SocketKernel {
	return &SocketKernel{cfg: cfg, vehicle: vehicle, launch: backend.Launch}
}

// Start launches the simulator process, performs the handshake, and pushes
// the network file. The handle is closed on every failure path so no
// process outlives a failed Start.
func (k *SocketKernel) Start(net *network.Network) error {
	if k.cfg.NetworkFile == "" {
		return &ConfigurationError{Option: "network_file", Reason: "socket backend requires a network file path"}
	}
	// Copy before appending: the caller owns cfg.Args and its backing array.
	args := append([]string(nil), k.cfg.Args...)
	if k.cfg.Render {
		args = append(args, "--gui")
	}
	if k.cfg.EmissionPath != "" {
		args = append(args, "--emission-output", EmissionFilePath(k.cfg.EmissionPath, net.Name))
	}
	h, err := k.launch(backend.Config{
		Binary:         k.cfg.Binary,
		Args:           args,
		Host:           k.cfg.Host,
		Port:           k.cfg.Port,
		ConnectTimeout: k.cfg.ConnectTimeout,
		RequestTimeout: k.cfg.RequestTimeout,
		Label:          net.Name,
	})
	if err != nil {
		return &ConnectionError{Backend: BackendSocket.String(), Err: err}
	}
	if _, err := h.Request(backend.CmdLoadNetwork, []byte(k.cfg.NetworkFile)); err != nil {
		h.Close()
		return &InitializationError{Network: net.Name, Err: err}
	}
	k.handle = h
	k.netName = net.Name
	logrus.Infof("socket backend ready for network %s", net.Name)
	return nil
}

func (k *SocketKernel) Advance(stepSize float64) (bool, error) {
	if err := k.usable("advance"); err != nil {
		return false, err
	}
	reply, err := k.handle.Request(backend.CmdSimStep, backend.EncodeStepRequest(stepSize))
	if err != nil {
		k.failed = true
		return false, &SimulationCommunicationError{Op: "advance", Err: err}
	}
	res, err := backend.DecodeStepResult(reply)
	if err != nil {
		k.failed = true
		return false, &SimulationCommunicationError{Op: "advance", Err: err}
	}
	obs := make([]VehicleObs, 0, len(res.Vehicles))
	for _, v := range res.Vehicles {
		obs = append(obs, VehicleObs{ID: v.ID, Speed: v.Speed, Edge: v.Edge, Pos: v.Pos})
	}
	k.simTime = res.Time
	k.vehicle.apply(res.Time, obs, res.Entered, res.Left)
	return res.Done, nil
}

func (k *SocketKernel) SetSpeeds(cmds map[string]float64) error {
	if len(cmds) == 0 {
		return nil
	}
	if err := k.usable("set speeds"); err != nil {
		return err
	}
	for id := range cmds {
		if !k.vehicle.Contains(id) {
			return &UnknownEntityError{Kind: "vehicle", ID: id}
		}
	}
	if _, err := k.handle.Request(backend.CmdSetSpeeds, backend.EncodeSpeedCommands(cmds)); err != nil {
		k.failed = true
		return &SimulationCommunicationError{Op: "set speeds", Err: err}
	}
	return nil
}

func (k *SocketKernel) SimulationTime() float64 { return k.simTime }

// Reset reloads the initial state inside the running process; the process
// itself is kept alive across runs.
func (k *SocketKernel) Reset() error {
	if err := k.usable("reset"); err != nil {
		return err
	}
	if _, err := k.handle.Request(backend.CmdReset, nil); err != nil {
		k.failed = true
		return &SimulationCommunicationError{Op: "reset", Err: err}
	}
	k.simTime = 0
	k.vehicle.reset()
	return nil
}

// Terminate closes the backend, best-effort. Safe after failures and safe
// to call more than once.
func (k *SocketKernel) Terminate() {
	if k.terminated {
		return
	}
	k.terminated = true
	if k.handle == nil {
		return
	}
	if !k.failed {
		if _, err := k.handle.Request(backend.CmdClose, nil); err != nil {
			logrus.Debugf("backend close command: %v", err)
		}
	}
	k.handle.Close()
	logrus.Infof("socket backend for network %s terminated", k.netName)
}

func (k *SocketKernel) usable(op string) error {
	if k.handle == nil {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel not started")}
	}
	if k.terminated {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel terminated")}
	}
	if k.failed {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel in failed state after prior I/O error")}
	}
	return nil
}
