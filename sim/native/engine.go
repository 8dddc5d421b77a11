// Package native is the native-API simulator backend: a deterministic
// in-process microsimulation engine driven through direct calls rather
// than a wire protocol. The kernel adapter in the sim package talks to it
// through the same narrow surface it would use against a vendor library:
// load a template, step, query vehicles, reset, shut down.
package native

import (
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/network"
)

// LoadOptions selects what to simulate inside a loaded template.
type LoadOptions struct {
	Subnetwork     string  // subnetwork to activate; empty means the whole network
	Replication    string  // replication label, folded into the RNG stream
	CentroidConfig string  // demand configuration label (informational)
	EmissionFile   string  // emission XML output path; empty disables logging
	MaxVehicles    int     // total vehicles injected per run (default 100)
	InflowRate     float64 // per-route injections per second (default 0.2)
}

const (
	defaultMaxVehicles = 100
	defaultInflowRate  = 0.2
	minGap             = 2.0 // meters kept behind a leader
)

// Outcome is the post-step snapshot returned by Step.
type Outcome struct {
	Done     bool    // no vehicles left and the injection budget is spent
	Time     float64 // simulation time, seconds
	Vehicles []VehicleObs
	Entered  []string
	Left     []string
}

// VehicleObs is one vehicle's observation within an Outcome.
type VehicleObs struct {
	ID    string
	Speed float64
	Edge  string
	Pos   float64
}

type vehicle struct {
	id       string
	route    []string
	edgeIdx  int
	pos      float64 // meters from the start of the current edge
	speed    float64
	cmdSpeed float64 // commanded target speed; negative means uncommanded
}

// Engine holds the full state of one native simulation instance.
type Engine struct {
	seed int64
	rng  *partitionedRNG

	net  *network.Network
	opts LoadOptions

	clock    float64
	vehicles []*vehicle // stable insertion order within a run
	byID     map[string]*vehicle
	nextID   int
	spawned  int

	emission *emissionWriter
	loaded   bool
	shutdown bool
}

// NewEngine creates an engine with the given master seed.
func NewEngine(seed int64) *Engine {
	return &Engine{seed: seed}
}

// LoadNetwork activates a network template. An unknown subnetwork name is
// a load failure, mirroring template lookup in the vendor API.
func (e *Engine) LoadNetwork(n *network.Network, opts LoadOptions) error {
	if e.shutdown {
		return fmt.Errorf("engine is shut down")
	}
	if opts.Subnetwork != "" && opts.Subnetwork != n.Name {
		return fmt.Errorf("subnetwork %q not found in template %q", opts.Subnetwork, n.Name)
	}
	if len(n.Routes) == 0 {
		return fmt.Errorf("template %q has no routes to inject into", n.Name)
	}
	if opts.MaxVehicles <= 0 {
		opts.MaxVehicles = defaultMaxVehicles
	}
	if opts.InflowRate <= 0 {
		opts.InflowRate = defaultInflowRate
	}
	e.net = n
	e.opts = opts
	e.loaded = true
	if err := e.restart(); err != nil {
		return err
	}
	return nil
}

// restart zeroes simulated state and re-derives the RNG streams so every
// run of one replication is bit-for-bit repeatable.
func (e *Engine) restart() error {
	e.clock = 0
	e.vehicles = nil
	e.byID = make(map[string]*vehicle)
	e.nextID = 0
	e.spawned = 0
	e.rng = newPartitionedRNG(e.seed ^ fnv1a64(e.opts.Replication))

	if e.emission != nil {
		e.emission.close()
		e.emission = nil
	}
	if e.opts.EmissionFile != "" {
		w, err := newEmissionWriter(e.opts.EmissionFile)
		if err != nil {
			return fmt.Errorf("open emission file: %w", err)
		}
		e.emission = w
	}
	return nil
}

// Reset restores the initial topology and demand without tearing the
// engine down, so repeated runs skip the load cost.
func (e *Engine) Reset() error {
	if !e.loaded {
		return fmt.Errorf("no network loaded")
	}
	if e.shutdown {
		return fmt.Errorf("engine is shut down")
	}
	return e.restart()
}

// Step advances simulated time by dt seconds and returns the resulting
// snapshot. Vehicles follow their route at the edge speed limit, capped by
// the gap to their leader and by any commanded speed.
func (e *Engine) Step(dt float64) (*Outcome, error) {
	if !e.loaded {
		return nil, fmt.Errorf("no network loaded")
	}
	if e.shutdown {
		return nil, fmt.Errorf("engine is shut down")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %v", dt)
	}

	entered := e.inject(dt)
	left := e.move(dt)
	e.clock += dt

	out := &Outcome{
		Time:    e.clock,
		Entered: entered,
		Left:    left,
	}
	out.Vehicles = make([]VehicleObs, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		out.Vehicles = append(out.Vehicles, VehicleObs{
			ID:    v.id,
			Speed: v.speed,
			Edge:  v.route[v.edgeIdx],
			Pos:   v.pos,
		})
	}
	out.Done = e.spawned >= e.opts.MaxVehicles && len(e.vehicles) == 0

	if e.emission != nil {
		if err := e.emission.writeStep(e.clock, out.Vehicles); err != nil {
			return nil, fmt.Errorf("write emission log: %w", err)
		}
	}
	return out, nil
}

// inject spawns new vehicles at route starts according to the inflow rate.
func (e *Engine) inject(dt float64) []string {
	rng := e.rng.forSubsystem(subsystemInflow)
	prob := e.opts.InflowRate * dt
	if prob > 1 {
		prob = 1
	}
	var entered []string
	for _, r := range e.net.Routes {
		if e.spawned >= e.opts.MaxVehicles {
			break
		}
		if rng.Float64() >= prob {
			continue
		}
		v := &vehicle{
			id:       fmt.Sprintf("%s.%d", r.ID, e.nextID),
			route:    r.Edges,
			cmdSpeed: -1,
		}
		e.nextID++
		e.spawned++
		e.vehicles = append(e.vehicles, v)
		e.byID[v.id] = v
		entered = append(entered, v.id)
	}
	return entered
}

// move advances every vehicle and returns the ids that left the network.
func (e *Engine) move(dt float64) []string {
	var left []string
	kept := e.vehicles[:0]
	for _, v := range e.vehicles {
		edge := e.net.EdgeByID(v.route[v.edgeIdx])
		desired := edge.SpeedLimit
		if v.cmdSpeed >= 0 && v.cmdSpeed < desired {
			desired = v.cmdSpeed
		}
		if leader := e.leaderOf(v); leader != nil {
			gap := leader.pos - v.pos - minGap
			if gap < 0 {
				gap = 0
			}
			if limit := gap / dt; limit < desired {
				desired = limit
			}
		}
		v.speed = desired
		v.pos += v.speed * dt

		// Cross edge boundaries, possibly several on a short edge.
		for v.pos >= edge.Length {
			v.pos -= edge.Length
			v.edgeIdx++
			if v.edgeIdx >= len(v.route) {
				break
			}
			edge = e.net.EdgeByID(v.route[v.edgeIdx])
		}
		if v.edgeIdx >= len(v.route) {
			delete(e.byID, v.id)
			left = append(left, v.id)
			continue
		}
		kept = append(kept, v)
	}
	e.vehicles = kept
	return left
}

// leaderOf returns the nearest vehicle ahead on the same edge, or nil.
func (e *Engine) leaderOf(v *vehicle) *vehicle {
	var leader *vehicle
	for _, other := range e.vehicles {
		if other == v || other.edgeIdx >= len(other.route) {
			continue
		}
		if other.route[other.edgeIdx] != v.route[v.edgeIdx] || other.pos <= v.pos {
			continue
		}
		if leader == nil || other.pos < leader.pos {
			leader = other
		}
	}
	return leader
}

// SetSpeed commands a target speed for one vehicle. The command persists
// until overwritten; a negative value clears it.
func (e *Engine) SetSpeed(id string, speed float64) error {
	v, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("vehicle %q not present", id)
	}
	v.cmdSpeed = speed
	return nil
}

// VehicleIDs returns the ids of all present vehicles in insertion order.
func (e *Engine) VehicleIDs() []string {
	ids := make([]string, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		ids = append(ids, v.id)
	}
	return ids
}

// Clock returns the current simulation time in seconds.
func (e *Engine) Clock() float64 { return e.clock }

// ActiveSubnetworks lists the subnetwork names the loaded template exposes.
func (e *Engine) ActiveSubnetworks() []string {
	if !e.loaded {
		return nil
	}
	return []string{e.net.Name}
}

// Shutdown finalizes the emission log and releases the template. Safe to
// call more than once and after failures.
func (e *Engine) Shutdown() {
	if e.shutdown {
		return
	}
	e.shutdown = true
	if e.emission != nil {
		e.emission.close()
		e.emission = nil
	}
}
