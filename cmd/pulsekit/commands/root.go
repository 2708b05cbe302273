// Package commands implements the pulsekit operator CLI: tools to inspect
// batch directories on disk and to run a mock intake during development.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/pulsekit/pulsekit/pkg/core"
)

var rootCmd = &cobra.Command{
	Use:   "pulsekit",
	Short: "PulseKit - device telemetry batching and upload engine",
	Long: `PulseKit is an embeddable telemetry SDK core: it batches events from
independent product features to disk, partitioned by tracking consent,
and uploads finalized batches to a remote intake with adaptive pacing.

This CLI ships the operator tooling around the SDK: inspecting batch
directories and running a local mock intake for development.

Use "pulsekit [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("pulsekit %s\n", core.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(intakeCmd)
}
