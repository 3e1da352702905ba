// Package commands implements the CLI commands for the seekctl client.
package commands

import (
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	agentcmd "github.com/seekd/seekd/cmd/seekctl/commands/agent"
	ctxcmd "github.com/seekd/seekd/cmd/seekctl/commands/context"
	searchcmd "github.com/seekd/seekd/cmd/seekctl/commands/search"
	sessioncmd "github.com/seekd/seekd/cmd/seekctl/commands/session"
	sharecmd "github.com/seekd/seekd/cmd/seekctl/commands/share"
	transfercmd "github.com/seekd/seekd/cmd/seekctl/commands/transfer"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "seekctl",
	Short: "seekd Control - Remote management client",
	Long: `seekctl is the command-line client for managing seekd daemons remotely.

Use this tool to drive transfers, searches, shares, and the overlay
session through the seekd REST API.

Use "seekctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("server", "", "Server URL (overrides stored credential)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (overrides stored credential)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ctxcmd.Cmd)
	rootCmd.AddCommand(sessioncmd.Cmd)
	rootCmd.AddCommand(transfercmd.Cmd)
	rootCmd.AddCommand(sharecmd.Cmd)
	rootCmd.AddCommand(searchcmd.Cmd)
	rootCmd.AddCommand(agentcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
