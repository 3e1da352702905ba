package search

import (
	"fmt"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Stop a running search",
	Long: `Stop a running search. Responses collected so far are kept.

Examples:
  # Stop a search early
  seekctl search cancel 4f2c...`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a settled search from history",
	Long: `Remove a settled search and its responses from history.

Running searches must be cancelled first.

Examples:
  # Remove a search
  seekctl search delete 4f2c...

  # Remove without confirmation
  seekctl search delete 4f2c... --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runCancel(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.CancelSearch(args[0]); err != nil {
		return fmt.Errorf("failed to cancel search: %w", err)
	}

	cmdutil.PrintSuccess("Search cancelled")
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	return cmdutil.RunDeleteWithConfirmation("Search", args[0], deleteForce, func() error {
		return client.DeleteSearch(args[0])
	})
}
