// Package main provides the mvsdepth command, which estimates per-view depth maps
// of a calibrated image set.
package main

import (
	"fmt"
	"os"

	"mvs-depth/internal/version"

	"github.com/spf13/cobra"
)

var (
	projectPath string
	viewIDs     []int
	targetIDs   []int
	numTargets  int
	maxAngle    float64
	minOverlap  float64
	configPath  string
	outDir      string
	logLevel    string

	rootCmd = &cobra.Command{
		Use:           "mvsdepth",
		Short:         "Estimate depth maps of calibrated views with semi-global matching",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Compute depth maps for one or more reference views of a project",
		Args:  cobra.NoArgs,
		RunE:  runDepth, // Defined in run.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
)

func init() {
	runCmd.Flags().StringVarP(&projectPath, "project", "p", "", "project file (.yaml or .json)")
	runCmd.Flags().IntSliceVar(&viewIDs, "view", nil, "reference view ids (default: all views)")
	runCmd.Flags().IntSliceVar(&targetIDs, "targets", nil, "target view ids (default: nearest neighbours)")
	runCmd.Flags().IntVar(&numTargets, "num-targets", 4, "number of neighbour views used as targets")
	runCmd.Flags().Float64Var(&maxAngle, "max-angle", 45, "largest angle in degrees between reference and target axes")
	runCmd.Flags().Float64Var(&minOverlap, "min-overlap", 0.2, "smallest fraction of a target image the reference must cover")
	runCmd.Flags().StringVar(&configPath, "config", "", "matching parameters (yaml), overrides the project's")
	runCmd.Flags().StringVar(&outDir, "out", "", "output folder (default: the project's depth map folder)")
	runCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	_ = runCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
