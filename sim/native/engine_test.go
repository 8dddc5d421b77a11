package native

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/network"
)

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.New("ring",
		[]network.Edge{
			{ID: "e1", Length: 100, SpeedLimit: 10},
			{ID: "e2", Length: 100, SpeedLimit: 10},
		},
		[]network.Route{{ID: "r1", Edges: []string{"e1", "e2"}}},
		nil)
	require.NoError(t, err)
	return n
}

func loadedEngine(t *testing.T, seed int64, opts LoadOptions) *Engine {
	t.Helper()
	e := NewEngine(seed)
	require.NoError(t, e.LoadNetwork(testNetwork(t), opts))
	return e
}

func TestLoadNetwork_UnknownSubnetworkFails(t *testing.T) {
	e := NewEngine(1)
	err := e.LoadNetwork(testNetwork(t), LoadOptions{Subnetwork: "missing"})
	assert.ErrorContains(t, err, `subnetwork "missing" not found`)
}

func TestLoadNetwork_NoRoutesFails(t *testing.T) {
	n, err := network.New("empty", []network.Edge{{ID: "e1", Length: 10, SpeedLimit: 5}}, nil, nil)
	require.NoError(t, err)
	assert.ErrorContains(t, NewEngine(1).LoadNetwork(n, LoadOptions{}), "no routes")
}

func TestStep_VehiclesEnterAdvanceAndLeave(t *testing.T) {
	e := loadedEngine(t, 7, LoadOptions{MaxVehicles: 3, InflowRate: 10})

	var entered, left int
	var out *Outcome
	var err error
	for i := 0; i < 200; i++ {
		out, err = e.Step(0.5)
		require.NoError(t, err)
		entered += len(out.Entered)
		left += len(out.Left)
		if out.Done {
			break
		}
	}
	assert.True(t, out.Done, "engine should drain after the injection budget")
	assert.Equal(t, 3, entered)
	assert.Equal(t, 3, left)
	assert.Empty(t, out.Vehicles)
}

func TestStep_DeterministicForSameSeed(t *testing.T) {
	run := func() []float64 {
		e := loadedEngine(t, 42, LoadOptions{MaxVehicles: 5, InflowRate: 5})
		var times []float64
		for i := 0; i < 50; i++ {
			out, err := e.Step(0.5)
			require.NoError(t, err)
			for range out.Left {
				times = append(times, out.Time)
			}
		}
		return times
	}
	assert.Equal(t, run(), run())
}

func TestReset_RestoresInitialStateAndRNG(t *testing.T) {
	e := loadedEngine(t, 42, LoadOptions{MaxVehicles: 5, InflowRate: 5})

	first, err := e.Step(0.5)
	require.NoError(t, err)

	require.NoError(t, e.Reset())
	assert.Equal(t, 0.0, e.Clock())
	assert.Empty(t, e.VehicleIDs())

	again, err := e.Step(0.5)
	require.NoError(t, err)
	assert.Equal(t, first.Entered, again.Entered, "same seed must replay the same inflow")
}

func TestStep_NonPositiveStepRejected(t *testing.T) {
	e := loadedEngine(t, 1, LoadOptions{})
	_, err := e.Step(0)
	assert.ErrorContains(t, err, "must be positive")
}

func TestSetSpeed_CapsVehicle(t *testing.T) {
	e := loadedEngine(t, 7, LoadOptions{MaxVehicles: 1, InflowRate: 1000})

	out, err := e.Step(0.5)
	require.NoError(t, err)
	require.Len(t, out.Entered, 1)
	id := out.Entered[0]

	require.NoError(t, e.SetSpeed(id, 1.0))
	out, err = e.Step(0.5)
	require.NoError(t, err)
	require.Len(t, out.Vehicles, 1)
	assert.InDelta(t, 1.0, out.Vehicles[0].Speed, 1e-9)

	assert.Error(t, e.SetSpeed("ghost", 1.0))
}

func TestShutdown_FinalizesEmissionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring-emission.xml")
	e := loadedEngine(t, 7, LoadOptions{MaxVehicles: 2, InflowRate: 10, EmissionFile: path})

	for i := 0; i < 5; i++ {
		_, err := e.Step(0.5)
		require.NoError(t, err)
	}
	e.Shutdown()
	e.Shutdown() // idempotent

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, `<?xml`))
	assert.Contains(t, body, "<timestep time=\"0.50\">")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "</emission-export>"))

	_, err = e.Step(0.5)
	assert.ErrorContains(t, err, "shut down")
}
