package share

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show share counts and scan progress",
	Long: `Show the shared-file index summary.

Examples:
  # Show share counts
  seekctl share list

  # Show as JSON
  seekctl share list -o json`,
	RunE: runList,
}

// sharesView renders the share summary as a table.
type sharesView struct {
	shares *apiclient.Shares
}

// Headers implements TableRenderer.
func (v sharesView) Headers() []string {
	return []string{"DIRECTORIES", "FILES", "SCANNING", "PROGRESS", "FAULTED"}
}

// Rows implements TableRenderer.
func (v sharesView) Rows() [][]string {
	progress := "-"
	if v.shares.Filling {
		progress = fmt.Sprintf("%.0f%%", v.shares.FillProgress*100)
	}
	return [][]string{{
		fmt.Sprintf("%d", v.shares.Directories),
		fmt.Sprintf("%d", v.shares.Files),
		cmdutil.BoolToYesNo(v.shares.Filling),
		progress,
		cmdutil.BoolToYesNo(v.shares.Faulted),
	}}
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	shares, err := client.GetShares()
	if err != nil {
		return fmt.Errorf("failed to fetch shares: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, shares, sharesView{shares})
}
