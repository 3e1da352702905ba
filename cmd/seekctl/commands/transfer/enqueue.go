package transfer

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var enqueueSize int64

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <username> <filename>",
	Short: "Enqueue a download from a peer",
	Long: `Enqueue a download of a peer's file.

The filename is the peer's remote path exactly as it appears in a
search response or browse listing. Passing the size from the search
response lets resumed downloads settle without a metadata round trip.

Examples:
  # Enqueue a download
  seekctl transfer enqueue alice "music\\album\\01 - track.flac"

  # Enqueue with a known size
  seekctl transfer enqueue alice "music\\album\\01 - track.flac" --size 31457280`,
	Args: cobra.ExactArgs(2),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().Int64Var(&enqueueSize, "size", 0, "Expected file size in bytes, if known")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	transfer, err := client.EnqueueDownload(args[0], args[1], enqueueSize)
	if err != nil {
		return fmt.Errorf("failed to enqueue download: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, transfer,
		fmt.Sprintf("Download enqueued: %s (id %s)", transfer.RemoteFilename, transfer.ID))
}
