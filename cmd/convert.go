package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-sim/traffic-sim/sim/emission"
)

var (
	emissionFile string // Emission XML to convert
	keepXML      bool   // Keep the XML source after conversion
)

// convertCmd converts an emission log outside of an experiment run, e.g.
// when a previous run was interrupted before its post-processing step.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert an emission XML log to a CSV artifact",
	Run: func(cmd *cobra.Command, args []string) {
		if emissionFile == "" {
			logrus.Fatalf("No emission file provided.")
		}
		csvPath, err := emission.ConvertToCSV(emissionFile)
		if err != nil {
			logrus.Fatalf("Emission conversion failed: %v", err)
		}
		if !keepXML {
			if err := os.Remove(emissionFile); err != nil {
				logrus.Fatalf("Could not remove emission source: %v", err)
			}
		}
		fmt.Println(csvPath)
	},
}

func init() {
	convertCmd.Flags().StringVar(&emissionFile, "emission", "", "Emission XML file to convert")
	convertCmd.Flags().BoolVar(&keepXML, "keep-xml", false, "Keep the XML source after conversion")
	rootCmd.AddCommand(convertCmd)
}
