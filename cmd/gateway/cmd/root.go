package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Fitlink realtime gateway",
	Long: `The realtime gateway bridges client websockets to the Fitlink
platform: it authenticates connections against the identity provider,
tracks online presence, and fans conversation events out to every
connected device.

Use "gateway [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
