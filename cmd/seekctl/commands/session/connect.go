package session

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the overlay server",
	Long: `Tell the daemon to establish its overlay session.

The daemon dials the configured overlay server and logs in; lost
connections are redialed with backoff until disconnected.

Examples:
  # Bring the session up
  seekctl session connect`,
	RunE: runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect from the overlay server",
	Long: `Tell the daemon to drop its overlay session and stay down.

Examples:
  # Take the session down
  seekctl session disconnect`,
	RunE: runDisconnect,
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Drop and re-establish the overlay session",
	Long: `Tell the daemon to drop its overlay session and dial again.

Useful after changing overlay credentials, which only take effect on
the next connection.

Examples:
  # Cycle the session
  seekctl session reconnect`,
	RunE: runReconnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	return applyAction("connect", "Session connecting")
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	return applyAction("disconnect", "Session disconnected")
}

func runReconnect(cmd *cobra.Command, args []string) error {
	return applyAction("reconnect", "Session reconnecting")
}

func applyAction(action, successMsg string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	session, err := client.UpdateSession(action)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, session, successMsg)
}
