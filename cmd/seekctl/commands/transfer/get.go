package transfer

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/internal/cli/output"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var getDirection string

var getCmd = &cobra.Command{
	Use:   "get <username> <id>",
	Short: "Show a single transfer",
	Long: `Show a single transfer by peer username and transfer ID.

Examples:
  # Show a download
  seekctl transfer get alice 4f2c...

  # Show an upload
  seekctl transfer get alice 4f2c... --direction uploads`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getDirection, "direction", "d", "downloads", "Direction (downloads|uploads)")
}

func runGet(cmd *cobra.Command, args []string) error {
	direction, err := normalizeDirection(getDirection)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	transfer, err := client.GetTransfer(direction, args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to get transfer: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, transfer)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, transfer)
	default:
		printTransferDetail(transfer)
		return nil
	}
}

func printTransferDetail(t *apiclient.Transfer) {
	pairs := [][2]string{
		{"ID", t.ID},
		{"Direction", t.Direction},
		{"User", t.Username},
		{"Remote file", t.RemoteFilename},
	}
	if t.LocalFilename != "" {
		pairs = append(pairs, [2]string{"Local file", t.LocalFilename})
	}
	pairs = append(pairs,
		[2]string{"Size", cmdutil.FormatSize(t.Size)},
		[2]string{"Transferred", cmdutil.FormatSize(t.BytesTransferred)},
		[2]string{"Progress", cmdutil.FormatProgress(t.BytesTransferred, t.Size)},
		[2]string{"Speed", cmdutil.FormatSpeed(t.AverageSpeed)},
		[2]string{"State", t.State},
		[2]string{"Enqueued", t.EnqueuedAt.Local().Format("2006-01-02 15:04:05")},
	)
	if t.StartedAt != nil {
		pairs = append(pairs, [2]string{"Started", t.StartedAt.Local().Format("2006-01-02 15:04:05")})
	}
	if t.EndedAt != nil {
		pairs = append(pairs, [2]string{"Ended", t.EndedAt.Local().Format("2006-01-02 15:04:05")})
	}
	if t.Failure != nil {
		pairs = append(pairs, [2]string{"Failure", fmt.Sprintf("%s: %s", t.Failure.Kind, t.Failure.Message)})
	}
	_ = output.SimpleTable(os.Stdout, pairs)
}
