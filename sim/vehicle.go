package sim

// VehicleObs is one vehicle's observation handed to the cache by a kernel
// adapter after a completed step.
type VehicleObs struct {
	ID    string
	Speed float64 // m/s
	Edge  string
	Pos   float64 // meters from edge start
}

// Position locates a vehicle on the network.
type Position struct {
	Edge string
	Pos  float64
}

// snapshot is one complete post-step view. It is never mutated after
// construction; the cache swaps whole snapshots so readers see either the
// previous step or the current one, never a mix.
type snapshot struct {
	ids       []string
	speeds    map[string]float64
	positions map[string]Position
}

func emptySnapshot() *snapshot {
	return &snapshot{
		speeds:    map[string]float64{},
		positions: map[string]Position{},
	}
}

// flowSample records how many vehicles entered and left the network during
// the step that completed at the given simulation time.
type flowSample struct {
	time    float64
	entered int
	left    int
}

// VehicleKernel is the k.vehicle namespace: the cached, per-step-refreshed
// view of simulated vehicles, served without backend round trips.
type VehicleKernel struct {
	snap    *snapshot
	flows   []flowSample
	simTime float64
}

func newVehicleKernel() *VehicleKernel {
	return &VehicleKernel{snap: emptySnapshot()}
}

// apply installs the snapshot for one completed step and extends the
// inflow/outflow log. Called exactly once per Advance by the owning kernel.
func (k *VehicleKernel) apply(time float64, vehicles []VehicleObs, entered, left []string) {
	next := &snapshot{
		ids:       make([]string, 0, len(vehicles)),
		speeds:    make(map[string]float64, len(vehicles)),
		positions: make(map[string]Position, len(vehicles)),
	}
	for _, v := range vehicles {
		next.ids = append(next.ids, v.ID)
		next.speeds[v.ID] = v.Speed
		next.positions[v.ID] = Position{Edge: v.Edge, Pos: v.Pos}
	}
	k.snap = next
	k.simTime = time
	k.flows = append(k.flows, flowSample{time: time, entered: len(entered), left: len(left)})
}

// reset clears the cache and the flow log for a fresh run.
func (k *VehicleKernel) reset() {
	k.snap = emptySnapshot()
	k.flows = nil
	k.simTime = 0
}

// IDs returns the ids of all vehicles present after the last step. The
// ordering is stable within a step but not across steps.
func (k *VehicleKernel) IDs() []string {
	ids := make([]string, len(k.snap.ids))
	copy(ids, k.snap.ids)
	return ids
}

// Speed returns the speeds of the given vehicles from the current
// snapshot. An id not present yields an UnknownEntityError.
func (k *VehicleKernel) Speed(ids []string) ([]float64, error) {
	out := make([]float64, len(ids))
	for i, id := range ids {
		v, ok := k.snap.speeds[id]
		if !ok {
			return nil, &UnknownEntityError{Kind: "vehicle", ID: id}
		}
		out[i] = v
	}
	return out, nil
}

// Contains reports whether a vehicle id is present in the current snapshot.
func (k *VehicleKernel) Contains(id string) bool {
	_, ok := k.snap.speeds[id]
	return ok
}

// Position returns the edge/offset positions of the given vehicles.
func (k *VehicleKernel) Position(ids []string) ([]Position, error) {
	out := make([]Position, len(ids))
	for i, id := range ids {
		p, ok := k.snap.positions[id]
		if !ok {
			return nil, &UnknownEntityError{Kind: "vehicle", ID: id}
		}
		out[i] = p
	}
	return out, nil
}

// OutflowRate returns, in vehicles per hour, the rate at which vehicles
// left the network over the trailing window. When the elapsed simulation
// time is shorter than the window, the entire elapsed time is used instead.
func (k *VehicleKernel) OutflowRate(windowSeconds float64) float64 {
	return k.flowRate(windowSeconds, func(s flowSample) int { return s.left })
}

// InflowRate is OutflowRate for vehicles entering the network.
func (k *VehicleKernel) InflowRate(windowSeconds float64) float64 {
	return k.flowRate(windowSeconds, func(s flowSample) int { return s.entered })
}

func (k *VehicleKernel) flowRate(windowSeconds float64, count func(flowSample) int) float64 {
	window := windowSeconds
	if k.simTime < window {
		window = k.simTime
	}
	if window <= 0 {
		return 0
	}
	cutoff := k.simTime - window
	total := 0
	for _, s := range k.flows {
		if s.time > cutoff {
			total += count(s)
		}
	}
	return 3600 * float64(total) / window
}
