package config

import (
	"fmt"
	"os"

	"github.com/seekd/seekd/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with defaults",
	Long: `Create a seekd configuration file populated with defaults.

By default, the configuration file is created at $XDG_CONFIG_HOME/seekd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize at the default location
  seekd config init

  # Initialize at a custom path
  seekd config init --config /etc/seekd/config.yaml

  # Force overwrite an existing file
  seekd config init --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	var configPath string
	var err error

	if configFile != "" {
		if _, statErr := os.Stat(configFile); statErr == nil && !initForce {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configFile)
		}
		err = config.SaveConfig(config.GetDefaultConfig(), configFile)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set overlay.address, overlay.username and overlay.password")
	fmt.Println("  2. List your shared directories under shares.roots")
	fmt.Println("  3. Add an operator account under api.users (seekctl hash-password)")
	fmt.Println("  4. Start the daemon with: seekd start")
	return nil
}
