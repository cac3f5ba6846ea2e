// Package cli implements the cobra commands for the skiff binary.
// Each subcommand (up, down, list, logs) lives in its own file. The
// binary is a thin convenience over the library; test suites import
// the library directly.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version is injected from the main package at build time.
var Version = "dev"

// Global flags bound to the root command's persistent flag set.
var (
	// presetFile is the service definition file read by up.
	presetFile string

	// verbose raises the log level to debug.
	verbose bool
)

// NewRootCommand creates the root command with all subcommands
// registered. The root itself only carries help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skiff",
		Short: "Provision short-lived service containers for test suites",
		Long: `skiff spins up throwaway service containers (Postgres, Mongo, Redis, ...)
for test runs: it allocates a free host port, pulls the image, starts the
container with the port bound, and waits until the service's readiness
marker appears in its logs.

Service definitions come from a preset file (JSONC or YAML).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	// --file carries no shorthand so logs can use -f for --follow,
	// matching the engine CLI.
	rootCmd.PersistentFlags().StringVar(&presetFile, "file", "skiff.jsonc", "preset file with service definitions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newDownCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newLogsCommand())

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
