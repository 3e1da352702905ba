// Package search implements overlay search subcommands for seekctl.
package search

import (
	"github.com/spf13/cobra"
)

// Cmd is the search subcommand.
var Cmd = &cobra.Command{
	Use:     "search",
	Aliases: []string{"searches"},
	Short:   "Run and inspect overlay searches",
	Long: `Run file searches across the overlay and inspect their results.

Subcommands:
  create   Start a new search
  list     List recent searches
  get      Show a search with its responses
  cancel   Stop a running search
  delete   Remove a settled search from history`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(deleteCmd)
}
