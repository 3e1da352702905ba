// Package share implements shared-file index subcommands for seekctl.
package share

import (
	"github.com/spf13/cobra"
)

// Cmd is the share subcommand.
var Cmd = &cobra.Command{
	Use:     "share",
	Aliases: []string{"shares"},
	Short:   "Manage the shared-file index",
	Long: `Manage the daemon's shared-file index.

Subcommands:
  list      Show share counts and scan progress
  contents  List the shared directories and files
  rescan    Start a background rescan of the shared directories`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(contentsCmd)
	Cmd.AddCommand(rescanCmd)
}
