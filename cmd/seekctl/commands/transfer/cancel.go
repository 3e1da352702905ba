package transfer

import (
	"fmt"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var (
	cancelDirection string
	cancelRemove    bool
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <username> <id>",
	Short: "Abort a transfer",
	Long: `Abort a transfer. With --remove it is also dropped from history.

Examples:
  # Abort a download
  seekctl transfer cancel alice 4f2c...

  # Abort an upload and drop it from the list
  seekctl transfer cancel alice 4f2c... --direction uploads --remove`,
	Args: cobra.ExactArgs(2),
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().StringVarP(&cancelDirection, "direction", "d", "downloads", "Direction (downloads|uploads)")
	cancelCmd.Flags().BoolVar(&cancelRemove, "remove", false, "Also drop the transfer from history")
}

func runCancel(cmd *cobra.Command, args []string) error {
	direction, err := normalizeDirection(cancelDirection)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.CancelTransfer(direction, args[0], args[1], cancelRemove); err != nil {
		return fmt.Errorf("failed to cancel transfer: %w", err)
	}

	if cancelRemove {
		cmdutil.PrintSuccess("Transfer cancelled and removed")
	} else {
		cmdutil.PrintSuccess("Transfer cancelled")
	}
	return nil
}
