// Package commands implements the CLI commands for the seekd agent.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "seekd-agent",
	Short: "seekd-agent - Federated share node for a seekd controller",
	Long: `seekd-agent federates a machine's local files into a seekd controller.

The agent keeps a control-channel connection to its controller, answers
file metadata requests from its local share index, and uploads file
content and catalog snapshots over HTTP.

Use "seekd-agent [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "agent config file (required for start)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
}
