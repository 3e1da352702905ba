package search

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches",
	Long: `List recent searches, newest first.

Examples:
  # List searches as table
  seekctl search list

  # List the five most recent
  seekctl search list --limit 5`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of searches to return")
}

// SearchList is a list of searches for table rendering.
type SearchList []apiclient.Search

// Headers implements TableRenderer.
func (sl SearchList) Headers() []string {
	return []string{"ID", "TEXT", "STATE", "RESPONSES", "FILES", "STARTED"}
}

// Rows implements TableRenderer.
func (sl SearchList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.ID,
			s.Text,
			s.State,
			fmt.Sprintf("%d", s.ResponseCount),
			fmt.Sprintf("%d", s.FileCount),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	searches, err := client.ListSearches(listLimit)
	if err != nil {
		return fmt.Errorf("failed to list searches: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, searches, len(searches) == 0,
		"No searches.", SearchList(searches))
}
