package share

import (
	"fmt"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Start a background rescan of the shared directories",
	Long: `Start a background rescan of the daemon's shared directories.

The scan runs in the background; follow its progress with
'seekctl share list'. A rescan request while a scan is running
is refused.

Examples:
  # Kick off a rescan
  seekctl share rescan`,
	RunE: runRescan,
}

func runRescan(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.RescanShares(); err != nil {
		return fmt.Errorf("failed to start rescan: %w", err)
	}

	cmdutil.PrintSuccess("Rescan started")
	return nil
}
