// Package transfer implements transfer subcommands for seekctl.
package transfer

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Cmd is the transfer subcommand.
var Cmd = &cobra.Command{
	Use:     "transfer",
	Aliases: []string{"transfers"},
	Short:   "Manage downloads and uploads",
	Long: `Manage the daemon's transfer queues.

Subcommands:
  list      List transfers in one direction
  get       Show a single transfer
  enqueue   Enqueue a download from a peer
  cancel    Abort a transfer
  position  Show the remote queue position of a queued download`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(enqueueCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(positionCmd)
}

// normalizeDirection maps the accepted direction spellings to the API's.
func normalizeDirection(direction string) (string, error) {
	switch direction {
	case "downloads", "download", "down":
		return "downloads", nil
	case "uploads", "upload", "up":
		return "uploads", nil
	default:
		return "", fmt.Errorf("invalid direction %q (want downloads or uploads)", direction)
	}
}
