package transfer

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var listDirection string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List transfers",
	Long: `List transfers in one direction, downloads by default.

Examples:
  # List downloads as table
  seekctl transfer list

  # List uploads
  seekctl transfer list --direction uploads

  # List as JSON
  seekctl transfer list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listDirection, "direction", "d", "downloads", "Direction (downloads|uploads)")
}

// TransferList is a list of transfers for table rendering.
type TransferList []apiclient.Transfer

// Headers implements TableRenderer.
func (tl TransferList) Headers() []string {
	return []string{"ID", "USER", "FILE", "SIZE", "PROGRESS", "SPEED", "STATE"}
}

// Rows implements TableRenderer.
func (tl TransferList) Rows() [][]string {
	rows := make([][]string, 0, len(tl))
	for _, t := range tl {
		rows = append(rows, []string{
			t.ID,
			t.Username,
			t.RemoteFilename,
			cmdutil.FormatSize(t.Size),
			cmdutil.FormatProgress(t.BytesTransferred, t.Size),
			cmdutil.FormatSpeed(t.AverageSpeed),
			t.State,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	direction, err := normalizeDirection(listDirection)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	transfers, err := client.ListTransfers(direction)
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, transfers, len(transfers) == 0,
		fmt.Sprintf("No %s.", direction), TransferList(transfers))
}
