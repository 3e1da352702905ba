// Package agent implements agent fabric subcommands for seekctl.
package agent

import (
	"fmt"
	"os"
	"time"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/internal/cli/timeutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the agent subcommand.
var Cmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"agents"},
	Short:   "Inspect connected share agents",
	Long: `Inspect the subordinate agents federating shares into this daemon.

Subcommands:
  list   List connected agents`,
}

func init() {
	Cmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected agents",
	Long: `List the agents currently connected to the daemon.

Examples:
  # List agents as table
  seekctl agent list

  # List as JSON
  seekctl agent list -o json`,
	RunE: runList,
}

// AgentList is a list of agents for table rendering.
type AgentList []apiclient.Agent

// Headers implements TableRenderer.
func (al AgentList) Headers() []string {
	return []string{"NAME", "REMOTE ADDR", "CONNECTED"}
}

// Rows implements TableRenderer.
func (al AgentList) Rows() [][]string {
	rows := make([][]string, 0, len(al))
	for _, a := range al {
		rows = append(rows, []string{
			a.Name,
			a.RemoteAddr,
			timeutil.FormatTime(a.ConnectedAt.Format(time.RFC3339)),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	agents, err := client.ListAgents()
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, agents, len(agents) == 0,
		"No agents connected.", AgentList(agents))
}
