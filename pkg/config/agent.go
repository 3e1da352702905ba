package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig represents the seekd-agent configuration.
//
// An agent is a subordinate node that federates its local files into a seekd
// controller. It maintains a persistent control-channel connection, answers
// file info requests from its own share index, and uploads file content and
// catalog snapshots over HTTP.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SEEKD_AGENT_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
type AgentConfig struct {
	// Name identifies this agent to the controller. The controller keeps at
	// most one connection per name; a reconnect under the same name replaces
	// the prior connection.
	Name string `mapstructure:"name" validate:"required,max=64" yaml:"name"`

	// Controller locates the seekd controller
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`

	// Secret is the pre-shared key matching the controller's agents.secret
	Secret string `mapstructure:"secret" validate:"required,min=16" yaml:"secret"`

	// Shares configures the agent's local share index
	Shares SharesConfig `mapstructure:"shares" yaml:"shares"`

	// ShareSyncInterval is how often the catalog is re-uploaded to the
	// controller
	// Default: 1h
	ShareSyncInterval time.Duration `mapstructure:"share_sync_interval" yaml:"share_sync_interval"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ControllerConfig locates the seekd controller from an agent's point of view.
type ControllerConfig struct {
	// Address is the control channel TCP address (host:port), matching the
	// controller's agents.listen
	Address string `mapstructure:"address" validate:"required,hostname_port" yaml:"address"`

	// URL is the controller's HTTP base URL for catalog and file uploads,
	// e.g. "http://controller:8080"
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`
}

// LoadAgent loads agent configuration from file, environment, and defaults.
func LoadAgent(configPath string) (*AgentConfig, error) {
	v := viper.New()

	v.SetEnvPrefix("SEEKD_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("agent configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read agent config file: %w", err)
	}

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}

	ApplyAgentDefaults(&cfg)

	if err := ValidateAgent(&cfg); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyAgentDefaults sets default values for any unspecified agent fields.
func ApplyAgentDefaults(cfg *AgentConfig) {
	applyLoggingDefaults(&cfg.Logging)
	applySharesDefaults(&cfg.Shares, getDataDir())

	if cfg.ShareSyncInterval == 0 {
		cfg.ShareSyncInterval = time.Hour
	}
}

// ValidateAgent checks the agent configuration for errors.
func ValidateAgent(cfg *AgentConfig) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	if len(cfg.Shares.Roots) == 0 {
		return fmt.Errorf("shares: an agent must share at least one root")
	}

	return validateSharesSection(&cfg.Shares)
}
