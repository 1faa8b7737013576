// Package cli implements the deepsleep command-line interface using Cobra.
// "serve" runs the orchestrator; the other commands talk to a running
// daemon or drive the device controllers directly for one-shot use.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deepsleep",
	Short: "deepsleep: keep Android in deep Doze while the screen is off",
	Long: `deepsleep forces the device into deep idle when the screen turns off,
keeps it there, and restores normal behaviour when the screen turns on.
It also throttles background processes and switches WALT scheduler modes.

Run "deepsleep serve" as root to start the daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
