// Tracks per-run and experiment-wide performance metrics.

package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AggregateMetrics collects the results of every run of an experiment.
// Slices are indexed by run; early-terminated runs contribute shorter
// per-step series but still occupy their run slot.
type AggregateMetrics struct {
	Returns        []float64   // cumulative reward per run
	MeanReturns    []float64   // mean per-step reward per run
	PerStepReturns [][]float64 // reward series per run
	Velocities     [][]float64 // mean-speed series per run
	MeanVelocities []float64   // mean of the speed series per run
	StdVelocities  []float64   // stddev of the speed series per run
	Outflows       []float64   // trailing-window outflow rate per run, veh/hr
	Inflows        []float64   // trailing-window inflow rate per run, veh/hr
	Throughputs    []float64   // outflow/inflow per run (see Experiment.Run)

	MeanOutflow   float64 // mean of Outflows across runs
	AvgSpeed      float64 // mean of MeanVelocities, rounded to 2 decimals
	AvgThroughput float64 // mean of Throughputs, rounded to 2 decimals
}

// Print displays the aggregate statistics at the end of the experiment.
func (m *AggregateMetrics) Print() {
	fmt.Println("=== Experiment Metrics ===")
	fmt.Printf("Runs                 : %d\n", len(m.Returns))
	fmt.Printf("Return               : %.2f (avg), %.2f (std)\n", meanOf(m.Returns), stdOf(m.Returns))
	fmt.Printf("Speed (m/s)          : %.2f (avg), %.2f (std)\n", meanOf(m.MeanVelocities), stdOf(m.MeanVelocities))
	fmt.Printf("Throughput (out/in)  : %.2f (avg), %.2f (std)\n", meanOf(m.Throughputs), stdOf(m.Throughputs))
	fmt.Printf("Outflow (veh/hr)     : %.2f (avg)\n", m.MeanOutflow)
}

// meanOf guards gonum against empty series: no data means 0, not NaN.
func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stdOf is the population standard deviation, again 0 for no data.
func stdOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
