package config

import (
	"fmt"

	"github.com/seekd/seekd/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a seekd configuration file without starting the daemon.

Checks syntax, types, value constraints, and cross-field rules (an agent
listener requires a secret, API users require a JWT secret, share root
specs must parse).

Examples:
  # Validate the default config
  seekd config validate

  # Validate a specific file
  seekd config validate --config /etc/seekd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}
