package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/network"
)

var (
	// CLI flags for the experiment loop
	configPath   string  // Optional YAML experiment spec
	backendName  string  // Backend variant: socket or native
	networkFile  string  // Network description XML file
	numRuns      int     // Number of independent runs
	numSteps     int     // Steps per run
	simStep      float64 // Seconds of simulated time per step
	render       bool    // Ask the backend for a GUI
	emissionPath string  // Emission output directory
	convertCSV   bool    // Convert the emission log after the runs
	seed         int64   // Seed for stochastic demand

	// CLI flags for the native-API backend
	subnetwork     string // Subnetwork to activate inside the template
	replication    string // Replication label
	centroidConfig string // Centroid configuration label

	// CLI flags for the socket-protocol backend
	simBinary string // Simulator executable
	simPort   int    // Control socket port
)

// runCmd executes an experiment using parameters from flags and/or a spec file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a traffic simulation experiment",
	Run: func(cmd *cobra.Command, args []string) {
		spec := &ExperimentSpec{}
		if configPath != "" {
			loaded, err := LoadExperimentSpec(configPath)
			if err != nil {
				logrus.Fatalf("Could not load experiment spec: %v", err)
			}
			spec = loaded
		}
		applyFlagOverrides(cmd, spec)

		if spec.NetworkFile == "" {
			logrus.Fatalf("No network file provided. Exiting experiment.")
		}

		kind, err := sim.ParseBackendKind(spec.Backend)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		net, err := network.Load(spec.NetworkFile)
		if err != nil {
			logrus.Fatalf("Could not load network: %v", err)
		}
		cfg, err := spec.SimulationConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting %s-backend experiment on %s: %d runs x %d steps, sim_step=%gs",
			spec.Backend, net.Name, spec.NumRuns, spec.NumSteps, cfg.SimStep)

		env, err := sim.NewEnvironment(kind, net, cfg)
		if err != nil {
			logrus.Fatalf("Could not construct environment: %v", err)
		}
		exp := sim.NewExperiment(env)

		metrics, err := exp.Run(sim.RunOptions{
			NumRuns:      spec.NumRuns,
			NumSteps:     spec.NumSteps,
			ConvertToCSV: spec.Convert,
		})
		if err != nil {
			if metrics != nil && len(metrics.Returns) > 0 {
				metrics.Print()
			}
			logrus.Fatalf("Experiment failed: %v", err)
		}
		metrics.Print()
	},
}

// applyFlagOverrides lets explicitly-set flags win over the spec file, and
// fills defaults when no spec file was given.
func applyFlagOverrides(cmd *cobra.Command, spec *ExperimentSpec) {
	set := cmd.Flags().Changed
	if set("backend") || spec.Backend == "" {
		spec.Backend = backendName
	}
	if set("network") || spec.NetworkFile == "" {
		spec.NetworkFile = networkFile
	}
	if set("num-runs") || spec.NumRuns == 0 {
		spec.NumRuns = numRuns
	}
	if set("num-steps") || spec.NumSteps == 0 {
		spec.NumSteps = numSteps
	}
	if set("sim-step") || spec.SimStep == 0 {
		spec.SimStep = simStep
	}
	if set("render") {
		spec.Render = render
	}
	if set("emission-path") {
		spec.Emission = emissionPath
	}
	if set("convert-to-csv") {
		spec.Convert = convertCSV
	}
	if set("seed") {
		spec.Seed = seed
	}
	if set("subnetwork") {
		spec.Native.Subnetwork = subnetwork
	}
	if set("replication") {
		spec.Native.Replication = replication
	}
	if set("centroid-config") {
		spec.Native.CentroidConfig = centroidConfig
	}
	if set("binary") {
		spec.Socket.Binary = simBinary
	}
	if set("port") {
		spec.Socket.Port = simPort
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML experiment spec; flags override its values")
	runCmd.Flags().StringVar(&backendName, "backend", "native", "Simulator backend (socket, native)")
	runCmd.Flags().StringVar(&networkFile, "network", "", "Network description XML file")
	runCmd.Flags().IntVar(&numRuns, "num-runs", 1, "Number of independent runs")
	runCmd.Flags().IntVar(&numSteps, "num-steps", 1000, "Steps per run")
	runCmd.Flags().Float64Var(&simStep, "sim-step", 0.1, "Seconds of simulated time per step")
	runCmd.Flags().BoolVar(&render, "render", false, "Ask the backend for a GUI where it has one")
	runCmd.Flags().StringVar(&emissionPath, "emission-path", "", "Directory for emission logs (empty disables)")
	runCmd.Flags().BoolVar(&convertCSV, "convert-to-csv", false, "Convert the emission log to CSV after the runs")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for stochastic demand")

	runCmd.Flags().StringVar(&subnetwork, "subnetwork", "", "Native backend: subnetwork to activate")
	runCmd.Flags().StringVar(&replication, "replication", "", "Native backend: replication label")
	runCmd.Flags().StringVar(&centroidConfig, "centroid-config", "", "Native backend: centroid configuration label")

	runCmd.Flags().StringVar(&simBinary, "binary", "", "Socket backend: simulator executable")
	runCmd.Flags().IntVar(&simPort, "port", 0, "Socket backend: control socket port")

	rootCmd.AddCommand(runCmd)
}
