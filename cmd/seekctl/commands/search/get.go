package search

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a search with its responses",
	Long: `Show a search and the files peers have offered, one row per file.

Examples:
  # Show a search's results
  seekctl search get 4f2c...

  # Full detail as JSON
  seekctl search get 4f2c... -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// resultList flattens a search's responses into one row per offered file.
type resultList struct {
	detail *apiclient.SearchDetail
}

// Headers implements TableRenderer.
func (rl resultList) Headers() []string {
	return []string{"USER", "FILE", "SIZE", "SLOT", "QUEUE"}
}

// Rows implements TableRenderer.
func (rl resultList) Rows() [][]string {
	var rows [][]string
	for _, r := range rl.detail.Responses {
		for _, f := range r.Files {
			rows = append(rows, []string{
				r.Username,
				f.Name,
				cmdutil.FormatSize(f.Size),
				cmdutil.BoolToYesNo(r.HasFreeSlot),
				fmt.Sprintf("%d", r.QueueLength),
			})
		}
	}
	return rows
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	detail, err := client.GetSearch(args[0])
	if err != nil {
		return fmt.Errorf("failed to get search: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, detail, detail.FileCount == 0,
		fmt.Sprintf("Search %q: no results yet (%s).", detail.Text, detail.State),
		resultList{detail})
}
