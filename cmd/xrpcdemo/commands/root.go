// Package commands implements the xrpcdemo CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "xrpcdemo",
	Short: "corerpc reference harness",
	Long: `xrpcdemo exercises the corerpc dispatcher end-to-end without any real
transport: two Dispatchers are wired together over an in-process Loopback
pair and driven through a fixed sequence of scenarios (round-trip command,
nested call, event-ack backpressure, remote-pool backpressure, callback proxy).

Use "xrpcdemo [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./corerpc.yaml, or built-in defaults)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}
