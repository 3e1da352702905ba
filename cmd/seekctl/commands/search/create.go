package search

import (
	"fmt"
	"os"
	"strings"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	createScope    string
	createRoom     string
	createUsername string
	createTimeout  string
)

var createCmd = &cobra.Command{
	Use:   "create <text>...",
	Short: "Start a new search",
	Long: `Start a file search across the overlay.

By default the search fans out to the whole network. Scope it to a
single room or peer with --scope room --room <name> or
--scope user --username <name>.

Examples:
  # Network-wide search
  seekctl search create pink floyd echoes

  # Search one room
  seekctl search create --scope room --room classical bach cello

  # Search one peer's shares
  seekctl search create --scope user --username alice live 1975`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createScope, "scope", "", "Search scope (network|room|user, default network)")
	createCmd.Flags().StringVar(&createRoom, "room", "", "Room name for --scope room")
	createCmd.Flags().StringVar(&createUsername, "username", "", "Peer username for --scope user")
	createCmd.Flags().StringVar(&createTimeout, "timeout", "", "Collection window, e.g. 30s (default server-side)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	req := apiclient.BeginSearchRequest{
		Text:     strings.Join(args, " "),
		Scope:    createScope,
		Room:     createRoom,
		Username: createUsername,
		Timeout:  createTimeout,
	}

	search, err := client.BeginSearch(req)
	if err != nil {
		return fmt.Errorf("failed to start search: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, search,
		fmt.Sprintf("Search started: %q (id %s)", search.Text, search.ID))
}
