package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/traffic-sim/traffic-sim/sim/native"
	"github.com/traffic-sim/traffic-sim/sim/network"
)

// NativeKernel adapts the native-API backend: operations are direct calls
// into the in-process engine, but the observable contract is identical to
// the socket variant.
type NativeKernel struct {
	cfg     SimulationConfig
	vehicle *VehicleKernel

	engine     *native.Engine
	netName    string
	failed     bool
	terminated bool
}

func newNativeKernel(cfg SimulationConfig, vehicle *VehicleKernel) *NativeKernel {
	return &NativeKernel{cfg: cfg, vehicle: vehicle}
}

func (k *NativeKernel) Start(net *network.Network) error {
	engine := native.NewEngine(k.cfg.Seed)
	opts := native.LoadOptions{
		Subnetwork:     k.cfg.Subnetwork,
		Replication:    k.cfg.Replication,
		CentroidConfig: k.cfg.CentroidConfig,
		MaxVehicles:    k.cfg.MaxVehicles,
		InflowRate:     k.cfg.InflowRate,
	}
	if k.cfg.EmissionPath != "" {
		opts.EmissionFile = EmissionFilePath(k.cfg.EmissionPath, net.Name)
	}
	if err := engine.LoadNetwork(net, opts); err != nil {
		engine.Shutdown()
		return &InitializationError{Network: net.Name, Err: err}
	}
	k.engine = engine
	k.netName = net.Name
	logrus.Infof("native backend ready for network %s (subnetworks %v)", net.Name, engine.ActiveSubnetworks())
	return nil
}

func (k *NativeKernel) Advance(stepSize float64) (bool, error) {
	if err := k.usable("advance"); err != nil {
		return false, err
	}
	out, err := k.engine.Step(stepSize)
	if err != nil {
		k.failed = true
		return false, &SimulationCommunicationError{Op: "advance", Err: err}
	}
	obs := make([]VehicleObs, 0, len(out.Vehicles))
	for _, v := range out.Vehicles {
		obs = append(obs, VehicleObs{ID: v.ID, Speed: v.Speed, Edge: v.Edge, Pos: v.Pos})
	}
	k.vehicle.apply(out.Time, obs, out.Entered, out.Left)
	return out.Done, nil
}

func (k *NativeKernel) SetSpeeds(cmds map[string]float64) error {
	if len(cmds) == 0 {
		return nil
	}
	if err := k.usable("set speeds"); err != nil {
		return err
	}
	for id, speed := range cmds {
		if !k.vehicle.Contains(id) {
			return &UnknownEntityError{Kind: "vehicle", ID: id}
		}
		if err := k.engine.SetSpeed(id, speed); err != nil {
			return &UnknownEntityError{Kind: "vehicle", ID: id}
		}
	}
	return nil
}

func (k *NativeKernel) SimulationTime() float64 {
	if k.engine == nil {
		return 0
	}
	return k.engine.Clock()
}

func (k *NativeKernel) Reset() error {
	if err := k.usable("reset"); err != nil {
		return err
	}
	if err := k.engine.Reset(); err != nil {
		k.failed = true
		return &SimulationCommunicationError{Op: "reset", Err: err}
	}
	k.vehicle.reset()
	return nil
}

func (k *NativeKernel) Terminate() {
	if k.terminated {
		return
	}
	k.terminated = true
	if k.engine == nil {
		return
	}
	k.engine.Shutdown()
	logrus.Infof("native backend for network %s terminated", k.netName)
}

func (k *NativeKernel) usable(op string) error {
	if k.engine == nil {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel not started")}
	}
	if k.terminated {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel terminated")}
	}
	if k.failed {
		return &SimulationCommunicationError{Op: op, Err: fmt.Errorf("kernel in failed state after prior failure")}
	}
	return nil
}
