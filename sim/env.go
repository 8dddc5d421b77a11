package sim

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/traffic-sim/traffic-sim/sim/network"
)

// State is the observation handed to action functions after each step:
// the vehicles currently present and their speeds, index-aligned.
type State struct {
	Time   float64
	IDs    []string
	Speeds []float64
}

// MeanSpeed averages the speeds of the present vehicles. An empty network
// yields 0 rather than a division by zero.
func (s State) MeanSpeed() float64 {
	if len(s.Speeds) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Speeds {
		sum += v
	}
	return sum / float64(len(s.Speeds))
}

// Action maps vehicle ids to commanded target speeds. nil means no control
// input for the step.
type Action map[string]float64

// ActionFn produces the control input for the next step from the current
// observation.
type ActionFn func(State) Action

// NoOpAction is the explicit default strategy: it commands nothing.
func NoOpAction(State) Action { return nil }

// Environment composes a network description with a kernel and exposes the
// classic reset/step/terminate control-loop shape. The reward is the mean
// vehicle speed, which suits throughput-style experiments; RL environments
// with bespoke rewards wrap this type.
type Environment struct {
	Network *network.Network
	K       *Kernel

	cfg        SimulationConfig
	started    bool
	terminated bool
}

// NewEnvironment builds an environment for the given backend variant. The
// backend connection itself is established lazily on the first Reset, so a
// constructed Environment holds no external resources yet.
func NewEnvironment(kind BackendKind, net *network.Network, cfg SimulationConfig) (*Environment, error) {
	k, err := NewKernel(kind, cfg)
	if err != nil {
		return nil, err
	}
	return &Environment{Network: net, K: k, cfg: cfg}, nil
}

// Config returns the simulation parameters the environment was built with.
func (env *Environment) Config() SimulationConfig { return env.cfg }

// Reset starts the backend on first use, re-initializes simulated state on
// subsequent calls, and returns the initial observation.
func (env *Environment) Reset() (State, error) {
	if env.terminated {
		return State{}, &SimulationCommunicationError{Op: "reset", Err: errors.New("environment terminated")}
	}
	if !env.started {
		if err := env.K.Simulation.Start(env.Network); err != nil {
			return State{}, err
		}
		env.started = true
	} else if err := env.K.Simulation.Reset(); err != nil {
		return State{}, err
	}
	return env.observe(), nil
}

// Step applies the action, advances the simulation by one sim_step, and
// returns the next observation, the reward, and whether the backend
// reported a terminal condition.
func (env *Environment) Step(action Action) (State, float64, bool, error) {
	if len(action) > 0 {
		if err := env.K.Simulation.SetSpeeds(action); err != nil {
			var unknown *UnknownEntityError
			if !errors.As(err, &unknown) {
				return State{}, 0, false, err
			}
			// The vehicle left between observation and command; the
			// action is stale, not fatal.
			logrus.Debugf("dropping action for departed %s %s", unknown.Kind, unknown.ID)
		}
	}
	done, err := env.K.Simulation.Advance(env.cfg.SimStep)
	if err != nil {
		return State{}, 0, false, err
	}
	state := env.observe()
	return state, state.MeanSpeed(), done, nil
}

// Terminate releases the backend. Idempotent and never raises; every exit
// path of a driver can call it unconditionally.
func (env *Environment) Terminate() {
	if env.terminated {
		return
	}
	env.terminated = true
	env.K.Simulation.Terminate()
}

func (env *Environment) observe() State {
	ids := env.K.Vehicle.IDs()
	speeds, err := env.K.Vehicle.Speed(ids)
	if err != nil {
		// ids came from the same snapshot; a miss means a cache bug.
		logrus.Errorf("snapshot lookup failed: %v", err)
		speeds = make([]float64, len(ids))
	}
	return State{Time: env.K.Simulation.SimulationTime(), IDs: ids, Speeds: speeds}
}
