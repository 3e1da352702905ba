package transfer

import (
	"fmt"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var positionCmd = &cobra.Command{
	Use:   "position <username> <id>",
	Short: "Show the remote queue position of a queued download",
	Long: `Ask the peer where a queued download sits in their upload queue.

Only meaningful for downloads the peer has queued remotely.

Examples:
  # Check the queue position
  seekctl transfer position alice 4f2c...`,
	Args: cobra.ExactArgs(2),
	RunE: runPosition,
}

func runPosition(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	position, err := client.TransferPosition("downloads", args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to fetch queue position: %w", err)
	}

	fmt.Printf("Queue position: %d\n", position)
	return nil
}
