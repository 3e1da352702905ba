package commands

import (
	"fmt"

	"github.com/seekd/seekd/cmd/seekctl/cmdutil"
	"github.com/seekd/seekd/internal/cli/prompt"
	"github.com/seekd/seekd/pkg/api/auth"
	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the daemon's api.users config",
	Long: `Hash a password for use in the daemon configuration.

The daemon's api.users entries carry bcrypt password hashes, never
plaintext. This command prompts for a password and prints the hash to
paste into the config file.

Examples:
  # Prompt for a password and print its hash
  seekctl hash-password`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	password, err := prompt.NewPassword()
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Println(hash)
	return nil
}
