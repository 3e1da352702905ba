// Package session implements overlay session subcommands for seekctl.
package session

import (
	"github.com/spf13/cobra"
)

// Cmd is the session subcommand.
var Cmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the overlay session",
	Long: `Manage the daemon's session with the overlay coordination server.

Subcommands:
  status      Show the session state
  connect     Connect to the overlay server
  disconnect  Disconnect from the overlay server
  reconnect   Drop and re-establish the session`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(connectCmd)
	Cmd.AddCommand(disconnectCmd)
	Cmd.AddCommand(reconnectCmd)
}
