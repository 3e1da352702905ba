package session

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the overlay session state",
	Long: `Show the daemon's session with the overlay coordination server.

Examples:
  # Show the session state
  seekctl session status

  # Show as JSON
  seekctl session status -o json`,
	RunE: runStatus,
}

// sessionView renders one session as a table.
type sessionView struct {
	session *apiclient.Session
}

// Headers implements TableRenderer.
func (v sessionView) Headers() []string {
	return []string{"STATE", "SERVER", "USER", "CONNECTED", "LOGGED IN"}
}

// Rows implements TableRenderer.
func (v sessionView) Rows() [][]string {
	return [][]string{{
		v.session.State,
		cmdutil.EmptyOr(v.session.Server, "-"),
		cmdutil.EmptyOr(v.session.Username, "-"),
		cmdutil.BoolToYesNo(v.session.Connected),
		cmdutil.BoolToYesNo(v.session.LoggedIn),
	}}
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	session, err := client.GetSession()
	if err != nil {
		return fmt.Errorf("failed to fetch session state: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, session, sessionView{session})
}
