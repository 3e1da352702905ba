package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/internal/cli/credentials"
	"github.com/seekd/seekd/internal/cli/health"
	"github.com/seekd/seekd/internal/cli/output"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the status of the connected seekd daemon.

Checks the daemon's health endpoint, then shows the version, the
overlay session state, the share scan progress, and any pending
operator actions (restart, reconnect, or share rescan) raised by
configuration changes.

Examples:
  # Check status of connected daemon
  seekctl status

  # Output as JSON
  seekctl status -o json`,
	RunE: runStatus,
}

// DaemonStatus represents the daemon status for display.
type DaemonStatus struct {
	Server  string           `json:"server" yaml:"server"`
	Healthy bool             `json:"healthy" yaml:"healthy"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
	State   *apiclient.State `json:"state,omitempty" yaml:"state,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Load credential store
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	// Get current context
	ctx, err := store.GetCurrentContext()
	if err != nil {
		return fmt.Errorf("not logged in. Run 'seekctl login' first")
	}

	serverURL := ctx.ServerURL
	if cmdutil.Flags.ServerURL != "" {
		serverURL = cmdutil.Flags.ServerURL
	}
	if serverURL == "" {
		return fmt.Errorf("no server configured. Run 'seekctl login' first")
	}

	status := DaemonStatus{Server: serverURL}

	// Check health endpoint
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(serverURL + "/healthz")
	if err != nil {
		status.Error = err.Error()
	} else {
		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
			status.Error = "failed to parse health response"
		} else {
			status.Healthy = healthResp.Status == "ok"
			if healthResp.Error != "" {
				status.Error = healthResp.Error
			}
		}
		_ = resp.Body.Close()
	}

	// The full snapshot needs authentication; skip it when unreachable.
	if status.Healthy {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}
		state, err := client.GetState()
		if err != nil {
			return fmt.Errorf("failed to fetch daemon state: %w", err)
		}
		status.State = state
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status DaemonStatus) {
	fmt.Println()
	fmt.Println("seekd Daemon Status")
	fmt.Println()
	fmt.Printf("  Server:      %s\n", status.Server)
	if !status.Healthy {
		fmt.Printf("  Health:      unreachable\n")
		if status.Error != "" {
			fmt.Printf("  Error:       %s\n", status.Error)
		}
		fmt.Println()
		return
	}
	fmt.Printf("  Health:      ok\n")

	state := status.State
	if state == nil {
		fmt.Println()
		return
	}

	fmt.Printf("  Version:     %s", state.Version.Version)
	if state.Version.Commit != "" {
		fmt.Printf(" (%s)", state.Version.Commit)
	}
	fmt.Println()

	fmt.Printf("  Session:     %s", state.Server.State)
	if state.Server.Username != "" {
		fmt.Printf(" as %s", state.Server.Username)
	}
	if state.Server.Server != "" {
		fmt.Printf(" on %s", state.Server.Server)
	}
	fmt.Println()

	switch {
	case state.Scan.Filling:
		fmt.Printf("  Shares:      scanning (%.0f%%)\n", state.Scan.FillProgress*100)
	case state.Scan.Faulted:
		fmt.Printf("  Shares:      scan faulted, %d directories, %d files\n",
			state.Scan.Directories, state.Scan.Files)
	default:
		fmt.Printf("  Shares:      %d directories, %d files\n",
			state.Scan.Directories, state.Scan.Files)
	}

	var pending []string
	if state.Pending.Restart {
		pending = append(pending, "restart")
	}
	if state.Pending.Reconnect {
		pending = append(pending, "reconnect")
	}
	if state.Pending.ShareRescan {
		pending = append(pending, "share rescan")
	}
	if len(pending) > 0 {
		fmt.Printf("  Pending:     %v\n", pending)
	}
	fmt.Println()
}
