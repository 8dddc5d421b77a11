package sim

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/traffic-sim/traffic-sim/sim/emission"
)

// inflowEpsilon is the threshold below which a run's inflow counts as zero
// for the throughput computation.
const inflowEpsilon = 1e-5

// defaultFlowWindow is the trailing window, in simulated seconds, over
// which per-run inflow and outflow rates are measured.
const defaultFlowWindow = 500.0

// emissionSettleTimeout bounds how long the driver waits for the backend's
// emission file to stop changing before conversion.
const emissionSettleTimeout = 10 * time.Second

// Experiment runs a network and environment for a set number of runs and
// steps per run, collecting metrics and managing the emission artifact.
type Experiment struct {
	Env *Environment
	ID  string
}

// RunOptions parameterizes one Run call.
type RunOptions struct {
	NumRuns  int
	NumSteps int
	// Actions maps observations to control inputs. nil selects NoOpAction.
	Actions ActionFn
	// ConvertToCSV converts the emission log to a CSV artifact after the
	// runs finish and deletes the XML source.
	ConvertToCSV bool
	// FlowWindow overrides the trailing flow-rate window in simulated
	// seconds; 0 selects the 500 s default.
	FlowWindow float64
}

// NewExperiment wraps an environment in a driver.
func NewExperiment(env *Environment) *Experiment {
	id := uuid.NewString()
	logrus.Infof("starting experiment %s on network %s at %s",
		id, env.Network.Name, time.Now().UTC().Format(time.RFC3339))
	return &Experiment{Env: env, ID: id}
}

// Run executes NumRuns independent repetitions of up to NumSteps steps
// each. A run that reports a terminal condition early still contributes
// its partial metrics. A mid-run communication failure aborts the
// remaining runs; the metrics of completed runs are returned alongside the
// error. The environment is terminated exactly once before Run returns.
func (e *Experiment) Run(opts RunOptions) (*AggregateMetrics, error) {
	if opts.NumRuns < 1 {
		return nil, &ConfigurationError{Option: "num_runs", Reason: "must be at least 1"}
	}
	if opts.NumSteps < 1 {
		return nil, &ConfigurationError{Option: "num_steps", Reason: "must be at least 1"}
	}
	// Fail fast: detecting a missing emission path only at teardown would
	// waste the whole simulation.
	if opts.ConvertToCSV && e.Env.Config().EmissionPath == "" {
		return nil, &ConfigurationError{
			Option: "emission_path",
			Reason: "convert_to_csv requires an emission output directory to be configured",
		}
	}
	actions := opts.Actions
	if actions == nil {
		actions = NoOpAction
	}
	window := opts.FlowWindow
	if window <= 0 {
		window = defaultFlowWindow
	}

	metrics, runErr := e.collect(opts.NumRuns, opts.NumSteps, actions, window)

	e.Env.Terminate()

	if opts.ConvertToCSV && runErr == nil {
		if err := e.convertEmission(); err != nil {
			// The conversion failure does not retroactively invalidate
			// the collected simulation metrics.
			return metrics, err
		}
	}
	return metrics, runErr
}

func (e *Experiment) collect(numRuns, numSteps int, actions ActionFn, window float64) (*AggregateMetrics, error) {
	m := &AggregateMetrics{}

	for i := 0; i < numRuns; i++ {
		logrus.Infof("experiment %s: run %d/%d", e.ID, i+1, numRuns)

		state, err := e.Env.Reset()
		if err != nil {
			e.finalize(m)
			return m, err
		}

		ret := 0.0
		var retList, vel []float64
		for j := 0; j < numSteps; j++ {
			next, reward, done, err := e.Env.Step(actions(state))
			if err != nil {
				// A communication failure poisons the kernel, so the
				// remaining runs cannot produce trustworthy state either.
				logrus.Errorf("experiment %s: run %d aborted at step %d: %v", e.ID, i+1, j+1, err)
				e.finalize(m)
				return m, err
			}
			state = next
			vel = append(vel, state.MeanSpeed())
			ret += reward
			retList = append(retList, reward)
			if done {
				logrus.Debugf("experiment %s: run %d terminal after %d steps", e.ID, i+1, j+1)
				break
			}
		}

		m.Returns = append(m.Returns, ret)
		m.PerStepReturns = append(m.PerStepReturns, retList)
		m.Velocities = append(m.Velocities, vel)
		m.MeanReturns = append(m.MeanReturns, meanOf(retList))
		m.MeanVelocities = append(m.MeanVelocities, meanOf(vel))
		m.StdVelocities = append(m.StdVelocities, stdOf(vel))

		m.Outflows = append(m.Outflows, e.Env.K.Vehicle.OutflowRate(window))
		m.Inflows = append(m.Inflows, e.Env.K.Vehicle.InflowRate(window))

		// Throughput is recomputed across all runs so far, and zeroed for
		// every run if any accumulated inflow is near zero.
		m.Throughputs = recomputeThroughput(m.Outflows, m.Inflows)

		logrus.Infof("experiment %s: run %d return %.2f", e.ID, i+1, ret)
	}

	e.finalize(m)
	return m, nil
}

func recomputeThroughput(outflows, inflows []float64) []float64 {
	tp := make([]float64, len(inflows))
	for _, in := range inflows {
		if in <= inflowEpsilon {
			return tp // all zeros
		}
	}
	for i := range tp {
		tp[i] = outflows[i] / inflows[i]
	}
	return tp
}

func (e *Experiment) finalize(m *AggregateMetrics) {
	m.MeanOutflow = meanOf(m.Outflows)
	m.AvgSpeed = round2(meanOf(m.MeanVelocities))
	m.AvgThroughput = round2(meanOf(m.Throughputs))
}

// convertEmission locates the emission log by convention, waits for the
// backend's final flush to settle, converts it, and deletes the XML source.
// Only called after Terminate, so the single writer is gone by now.
func (e *Experiment) convertEmission() error {
	path := EmissionFilePath(e.Env.Config().EmissionPath, e.Env.Network.Name)

	if err := emission.WaitStable(path, emissionSettleTimeout); err != nil {
		return &EmissionConversionError{Path: path, Err: err}
	}
	csvPath, err := emission.ConvertToCSV(path)
	if err != nil {
		return &EmissionConversionError{Path: path, Err: err}
	}
	if err := os.Remove(path); err != nil {
		return &EmissionConversionError{Path: path, Err: err}
	}
	logrus.Infof("experiment %s: emission log converted to %s", e.ID, csvPath)
	return nil
}
