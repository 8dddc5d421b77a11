package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleKernel_SnapshotSupersededWholesale(t *testing.T) {
	k := newVehicleKernel()

	k.apply(0.5, []VehicleObs{
		{ID: "a", Speed: 1, Edge: "e1", Pos: 10},
		{ID: "b", Speed: 2, Edge: "e1", Pos: 20},
	}, []string{"a", "b"}, nil)
	k.apply(1.0, []VehicleObs{
		{ID: "b", Speed: 3, Edge: "e2", Pos: 5},
	}, nil, []string{"a"})

	assert.Equal(t, []string{"b"}, k.IDs())

	speeds, err := k.Speed([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, speeds)

	// "a" left at the second step; querying it is recoverable, not fatal.
	_, err = k.Speed([]string{"a"})
	var unknown *UnknownEntityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "a", unknown.ID)
}

func TestVehicleKernel_OldSnapshotStaysIntactAcrossApply(t *testing.T) {
	k := newVehicleKernel()
	k.apply(0.5, []VehicleObs{{ID: "a", Speed: 1, Edge: "e1", Pos: 0}}, nil, nil)

	old := k.snap
	k.apply(1.0, []VehicleObs{{ID: "a", Speed: 9, Edge: "e1", Pos: 5}}, nil, nil)

	// A reader holding the previous snapshot sees the complete old view,
	// never a partially-updated one.
	assert.Equal(t, 1.0, old.speeds["a"])
	assert.Equal(t, 9.0, k.snap.speeds["a"])
}

func TestVehicleKernel_Position(t *testing.T) {
	k := newVehicleKernel()
	k.apply(0.5, []VehicleObs{{ID: "a", Speed: 1, Edge: "e2", Pos: 42.5}}, nil, nil)

	pos, err := k.Position([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []Position{{Edge: "e2", Pos: 42.5}}, pos)

	_, err = k.Position([]string{"ghost"})
	assert.Error(t, err)
}

func TestVehicleKernel_FlowRatesOverTrailingWindow(t *testing.T) {
	k := newVehicleKernel()
	// 10 steps of 1 s; one vehicle enters each step, one leaves on the
	// last five steps.
	for i := 1; i <= 10; i++ {
		var left []string
		if i > 5 {
			left = []string{"x"}
		}
		k.apply(float64(i), nil, []string{"y"}, left)
	}

	// Full elapsed time: 10 entries over 10 s, 5 exits over 10 s.
	assert.InDelta(t, 3600.0, k.InflowRate(10), 1e-9)
	assert.InDelta(t, 1800.0, k.OutflowRate(10), 1e-9)

	// Trailing 5 s window: 5 entries, 5 exits.
	assert.InDelta(t, 3600.0, k.InflowRate(5), 1e-9)
	assert.InDelta(t, 3600.0, k.OutflowRate(5), 1e-9)
}

func TestVehicleKernel_WindowLargerThanElapsedDegradesToElapsed(t *testing.T) {
	k := newVehicleKernel()
	k.apply(1, nil, []string{"a"}, nil)
	k.apply(2, nil, []string{"b"}, []string{"a"})

	// Elapsed is 2 s; a 500 s window must degrade to the full elapsed
	// time, not fail and not divide by 500.
	assert.InDelta(t, 3600.0, k.InflowRate(500), 1e-9)
	assert.InDelta(t, 1800.0, k.OutflowRate(500), 1e-9)
}

func TestVehicleKernel_NoElapsedTimeYieldsZeroRates(t *testing.T) {
	k := newVehicleKernel()
	assert.Zero(t, k.InflowRate(500))
	assert.Zero(t, k.OutflowRate(500))
}

func TestVehicleKernel_ResetClearsSnapshotAndFlows(t *testing.T) {
	k := newVehicleKernel()
	k.apply(1, []VehicleObs{{ID: "a", Speed: 1, Edge: "e1", Pos: 0}}, []string{"a"}, nil)

	k.reset()

	assert.Empty(t, k.IDs())
	assert.Zero(t, k.InflowRate(500))
	assert.False(t, k.Contains("a"))
}
