// Package cmd wires the command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// version is stamped by the build.
	version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "tempo-worker",
	Short:         "Edge worker serving the Tempo app shell, cache, and notifications",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: built-in defaults plus TEMPO_* environment overrides)")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
