package share

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/pkg/apiclient"
	"github.com/spf13/cobra"
)

var contentsPath string

var contentsCmd = &cobra.Command{
	Use:   "contents",
	Short: "List the shared directories and files",
	Long: `List the share catalog, one row per directory.

With --path, lists the files of a single shared directory instead.

Examples:
  # List all shared directories
  seekctl share contents

  # List one directory's files
  seekctl share contents --path "music/album"`,
	RunE: runContents,
}

func init() {
	contentsCmd.Flags().StringVar(&contentsPath, "path", "", "Show a single directory's files")
}

// DirectoryList is a list of shared directories for table rendering.
type DirectoryList []apiclient.SharedDirectory

// Headers implements TableRenderer.
func (dl DirectoryList) Headers() []string {
	return []string{"PATH", "FILES", "AGENT", "HIDDEN"}
}

// Rows implements TableRenderer.
func (dl DirectoryList) Rows() [][]string {
	rows := make([][]string, 0, len(dl))
	for _, d := range dl {
		rows = append(rows, []string{
			d.Path,
			fmt.Sprintf("%d", len(d.Files)),
			cmdutil.EmptyOr(d.Agent, "-"),
			cmdutil.BoolToYesNo(d.Hidden),
		})
	}
	return rows
}

// fileList renders one directory's files as a table.
type fileList struct {
	dir *apiclient.SharedDirectory
}

// Headers implements TableRenderer.
func (fl fileList) Headers() []string {
	return []string{"NAME", "SIZE", "EXTENSION"}
}

// Rows implements TableRenderer.
func (fl fileList) Rows() [][]string {
	rows := make([][]string, 0, len(fl.dir.Files))
	for _, f := range fl.dir.Files {
		rows = append(rows, []string{
			f.Name,
			cmdutil.FormatSize(f.Size),
			cmdutil.EmptyOr(f.Extension, "-"),
		})
	}
	return rows
}

func runContents(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if contentsPath != "" {
		dir, err := client.GetShareDirectory(contentsPath)
		if err != nil {
			return fmt.Errorf("failed to fetch directory: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, dir, len(dir.Files) == 0,
			"Directory is empty.", fileList{dir})
	}

	dirs, err := client.ListShareContents()
	if err != nil {
		return fmt.Errorf("failed to fetch share contents: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, dirs, len(dirs) == 0,
		"Nothing is shared.", DirectoryList(dirs))
}
