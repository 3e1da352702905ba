// Package commands implements the CLI commands for seekd daemon management.
package commands

import (
	"github.com/seekd/seekd/cmd/seekd/commands/config"
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
	Use:   "seekd",
	Short: "seekd - Self-hosted file-sharing overlay daemon",
	Long: `seekd is a self-hosted daemon for peer-to-peer file-sharing overlay
networks. It keeps a session with the overlay coordination server, advertises
a shared-file catalog, schedules downloads and uploads across policy groups,
and federates shares from subordinate agent nodes.

Use "seekd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/seekd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
