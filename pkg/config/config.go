package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/seekd/seekd/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the seekd controller configuration.
//
// This structure captures every static aspect of the daemon:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Overlay network session (coordination server, credentials, listener)
//   - Shared-file index (roots, filters, scan behavior)
//   - User groups and scheduling parameters
//   - Transfer engine limits and directories
//   - Agent fabric (control channel listener, shared secret)
//   - Operator REST API (port, JWT, users)
//   - Database connection (transfer and search persistence)
//   - IP blacklist source file
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SEEKD_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// The file is watched for changes at runtime; see Watcher and Diff for how
// edits are classified into subsystem-level change notices.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// DataDir is the base directory for daemon state: databases, the share
	// catalog cache, and default download directories all live beneath it.
	// Default: $XDG_DATA_HOME/seekd or ~/.local/share/seekd
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// Database configures transfer and search persistence (SQLite or PostgreSQL)
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Overlay configures the coordination-server session
	Overlay OverlayConfig `mapstructure:"overlay" yaml:"overlay"`

	// Shares configures the shared-file index
	Shares SharesConfig `mapstructure:"shares" yaml:"shares"`

	// Groups configures user groups and their scheduling parameters
	Groups GroupsConfig `mapstructure:"groups" yaml:"groups"`

	// Transfers configures the transfer engine
	Transfers TransfersConfig `mapstructure:"transfers" yaml:"transfers"`

	// Agents configures the agent fabric listener and shared secret
	Agents AgentsConfig `mapstructure:"agents" yaml:"agents"`

	// API contains operator REST API configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Blacklist configures the IP blacklist source file
	Blacklist BlacklistConfig `mapstructure:"blacklist" yaml:"blacklist"`

	// Rooms configures chat rooms joined after each login
	Rooms RoomsConfig `mapstructure:"rooms" yaml:"rooms"`

	// Integration configures outbound event webhooks
	Integration IntegrationConfig `mapstructure:"integration" yaml:"integration"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics exposure.
// Metrics are served on the API router at /metrics when enabled.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DatabaseConfig configures transfer and search persistence.
// SQLite is the default for single-node deployments; PostgreSQL is available
// for operators who already run one.
type DatabaseConfig struct {
	// Type selects the database backend
	// Valid values: sqlite, postgres
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres" yaml:"type"`

	// SQLite contains SQLite-specific settings (used when Type is "sqlite")
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite,omitempty"`

	// Postgres contains PostgreSQL-specific settings (used when Type is "postgres")
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite-specific database settings.
// The daemon keeps two database files, transfers.db and search.db, in the
// configured directory.
type SQLiteConfig struct {
	// Directory is where the database files are created
	// Default: DataDir
	Directory string `mapstructure:"directory" yaml:"directory,omitempty"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// Host is the PostgreSQL server hostname
	Host string `mapstructure:"host" yaml:"host,omitempty"`

	// Port is the PostgreSQL server port
	// Default: 5432
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`

	// User is the database user
	User string `mapstructure:"user" yaml:"user,omitempty"`

	// Password is the database password
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// Database is the database name
	Database string `mapstructure:"database" yaml:"database,omitempty"`

	// SSLMode controls TLS for the connection
	// Valid values: disable, require, verify-ca, verify-full
	// Default: disable
	SSLMode string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full" yaml:"ssl_mode,omitempty"`

	// MaxOpenConns limits the connection pool size
	// Default: 10
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"omitempty,min=1" yaml:"max_open_conns,omitempty"`

	// MaxIdleConns limits idle pooled connections
	// Default: 5
	MaxIdleConns int `mapstructure:"max_idle_conns" validate:"omitempty,min=0" yaml:"max_idle_conns,omitempty"`
}

// DSN returns the connection string for the PostgreSQL driver.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// OverlayConfig configures the coordination-server session.
//
// An empty Address leaves the daemon offline: it starts, serves its API, and
// scans shares, but never attempts to connect until an address is configured.
type OverlayConfig struct {
	// Address is the coordination server address (host:port)
	Address string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address"`

	// Username is the overlay account name
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the overlay account password
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// ConnectTimeout bounds each connection attempt
	// Default: 10s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// ListenPort is the port announced to peers for incoming connections.
	// 0 disables the listener.
	// Default: 2250
	ListenPort int `mapstructure:"listen_port" validate:"omitempty,min=1,max=65535" yaml:"listen_port"`

	// Distributed configures participation in the distributed search mesh
	Distributed DistributedConfig `mapstructure:"distributed" yaml:"distributed"`
}

// DistributedConfig configures distributed search mesh participation.
type DistributedConfig struct {
	// Enabled controls whether the daemon accepts distributed child connections
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ChildLimit is the maximum number of distributed children
	// Default: 25
	ChildLimit int `mapstructure:"child_limit" validate:"omitempty,min=0" yaml:"child_limit"`
}

// SharesConfig configures the shared-file index.
type SharesConfig struct {
	// Roots lists the shared directories. Each entry is an absolute path with
	// an optional [alias] prefix and an optional leading '!' or '-' marker
	// that hides the root from browse responses:
	//
	//	/music/flac
	//	[tapes]/mnt/archive/tapes
	//	![private]/home/op/inbox
	Roots []string `mapstructure:"roots" yaml:"roots"`

	// Filters lists regular expressions; files whose full local path matches
	// any filter are excluded from the catalog
	Filters []string `mapstructure:"filters" yaml:"filters,omitempty"`

	// Storage selects where the catalog index lives
	// Valid values: memory, disk (disk survives restarts and serves the prior
	// catalog until the first rescan completes)
	// Default: memory
	Storage string `mapstructure:"storage" validate:"omitempty,oneof=memory disk" yaml:"storage"`

	// CacheDir is the directory for the on-disk catalog (Storage "disk")
	// Default: DataDir/shares
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"`

	// ScanWorkers is the filesystem scan worker pool size
	// Default: number of CPUs
	ScanWorkers int `mapstructure:"scan_workers" validate:"omitempty,min=1" yaml:"scan_workers"`

	// RescanInterval triggers automatic rescans when greater than zero
	// Default: 0 (manual rescans only)
	RescanInterval time.Duration `mapstructure:"rescan_interval" yaml:"rescan_interval,omitempty"`

	// ResponseLimit caps the number of files returned per search
	// Default: 100
	ResponseLimit int `mapstructure:"response_limit" validate:"omitempty,min=1" yaml:"response_limit"`

	// RemoveSingleCharacterSearchTerms drops one-character tokens from
	// incoming queries before matching
	// Default: true
	RemoveSingleCharacterSearchTerms *bool `mapstructure:"remove_single_character_search_terms" yaml:"remove_single_character_search_terms,omitempty"`
}

// DropSingleCharacterTerms reports whether one-character search tokens are
// discarded. Unset defaults to true.
func (c SharesConfig) DropSingleCharacterTerms() bool {
	return c.RemoveSingleCharacterSearchTerms == nil || *c.RemoveSingleCharacterSearchTerms
}

// GroupsConfig configures user groups and their scheduling parameters.
//
// Two tunable groups are built in: "default" (users not matched elsewhere)
// and "leechers" (users sharing less than the configured thresholds). A third
// built-in, "blacklisted", is populated from the blacklist file and cannot be
// tuned here because its members are never served.
type GroupsConfig struct {
	// Default tunes the built-in group for unmatched users
	Default GroupConfig `mapstructure:"default" yaml:"default"`

	// Leechers tunes the built-in group for users sharing below thresholds
	Leechers LeechersGroupConfig `mapstructure:"leechers" yaml:"leechers"`

	// UserDefined maps group name to an operator-defined group.
	// User-defined groups are checked before the built-ins.
	UserDefined map[string]UserGroupConfig `mapstructure:"user_defined" yaml:"user_defined,omitempty"`
}

// GroupConfig holds the scheduling parameters shared by all groups.
type GroupConfig struct {
	// Priority orders groups during scheduling; lower values are served first
	// Default: 500 (default group), 900 (leechers)
	Priority int `mapstructure:"priority" validate:"omitempty,min=0" yaml:"priority"`

	// Strategy selects how transfers are picked within the group
	// Valid values: round_robin (rotate across users), fifo (oldest first)
	// Default: round_robin
	Strategy string `mapstructure:"strategy" validate:"omitempty,oneof=round_robin fifo" yaml:"strategy"`

	// Slots caps concurrent transfers for members of this group.
	// 0 means no group-level cap (the global limit still applies).
	Slots int `mapstructure:"slots" validate:"omitempty,min=0" yaml:"slots"`

	// SpeedLimit caps aggregate group bandwidth in bytes per second.
	// 0 means unlimited. Accepts human-readable sizes: "512KiB", "2MiB".
	SpeedLimit bytesize.ByteSize `mapstructure:"speed_limit" yaml:"speed_limit,omitempty"`
}

// LeechersGroupConfig tunes the built-in leechers group.
type LeechersGroupConfig struct {
	GroupConfig `mapstructure:",squash" yaml:",inline"`

	// Thresholds define the minimum share counts below which a user is
	// considered a leecher
	Thresholds LeecherThresholds `mapstructure:"thresholds" yaml:"thresholds"`
}

// LeecherThresholds defines minimum shared file and directory counts.
type LeecherThresholds struct {
	// Files is the minimum shared file count
	// Default: 1
	Files int `mapstructure:"files" validate:"omitempty,min=0" yaml:"files"`

	// Directories is the minimum shared directory count
	// Default: 1
	Directories int `mapstructure:"directories" validate:"omitempty,min=0" yaml:"directories"`
}

// UserGroupConfig defines an operator-defined group with an explicit member list.
type UserGroupConfig struct {
	GroupConfig `mapstructure:",squash" yaml:",inline"`

	// Members lists the usernames belonging to this group
	Members []string `mapstructure:"members" yaml:"members,omitempty"`
}

// Recognized resume_on_startup values.
const (
	ResumeErrored = "errored"
	ResumeRequeue = "requeue"
)

// TransfersConfig configures the transfer engine.
type TransfersConfig struct {
	// ResumeOnStartup selects what happens to non-terminal downloads found
	// in the database at startup
	// Valid values: errored (mark interrupted), requeue (enqueue again)
	// Default: errored
	ResumeOnStartup string `mapstructure:"resume_on_startup" validate:"omitempty,oneof=errored requeue" yaml:"resume_on_startup"`

	// Downloads configures the download direction
	Downloads DownloadConfig `mapstructure:"downloads" yaml:"downloads"`

	// Uploads configures the upload direction
	Uploads UploadConfig `mapstructure:"uploads" yaml:"uploads"`
}

// DownloadConfig configures the download direction of the transfer engine.
type DownloadConfig struct {
	// Directory is where completed downloads are placed
	// Default: DataDir/downloads
	Directory string `mapstructure:"directory" yaml:"directory"`

	// IncompleteDirectory stages in-progress downloads
	// Default: DataDir/incomplete
	IncompleteDirectory string `mapstructure:"incomplete_directory" yaml:"incomplete_directory"`

	// Slots caps concurrent downloads
	// Default: 5
	Slots int `mapstructure:"slots" validate:"omitempty,min=1" yaml:"slots"`

	// SpeedLimit caps aggregate download bandwidth in bytes per second.
	// 0 means unlimited.
	SpeedLimit bytesize.ByteSize `mapstructure:"speed_limit" yaml:"speed_limit,omitempty"`

	// MinFreeSpace rejects new downloads when the destination filesystem has
	// less free space than this. 0 disables the check.
	MinFreeSpace bytesize.ByteSize `mapstructure:"min_free_space" yaml:"min_free_space,omitempty"`
}

// UploadConfig configures the upload direction of the transfer engine.
type UploadConfig struct {
	// Slots caps concurrent uploads
	// Default: 10
	Slots int `mapstructure:"slots" validate:"omitempty,min=1" yaml:"slots"`

	// SpeedLimit caps aggregate upload bandwidth in bytes per second.
	// 0 means unlimited.
	SpeedLimit bytesize.ByteSize `mapstructure:"speed_limit" yaml:"speed_limit,omitempty"`
}

// AgentsConfig configures the agent fabric.
//
// Agents are subordinate seekd-agent nodes that federate their local files
// into this controller. They authenticate over a challenge-response handshake
// keyed by Secret, which must match on both ends and is provisioned
// out-of-band. The same secret signs the one-shot upload tokens agents present
// on the HTTP channel.
type AgentsConfig struct {
	// Listen is the TCP address for the agent control channel, e.g. ":5031".
	// Empty disables the agent fabric.
	Listen string `mapstructure:"listen" yaml:"listen,omitempty"`

	// Secret is the pre-shared key agents authenticate with.
	// Required when Listen is set; minimum 16 characters.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// PingInterval is how often idle agent connections are pinged
	// Default: 1m
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`

	// RequestTimeout bounds control-channel round trips: file stat lookups
	// and the wait for an agent to open its upload stream.
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// APIConfig contains operator REST API configuration.
type APIConfig struct {
	// Port is the HTTP port for the operator API
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds request reads. 0 disables the limit, which the
	// streaming agent upload endpoints require.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout,omitempty"`

	// WriteTimeout bounds response writes. 0 disables the limit.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout,omitempty"`

	// IdleTimeout closes idle keep-alive connections
	// Default: 120s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout,omitempty"`

	// JWT configures operator session tokens
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	// Users lists operator accounts allowed to log in to the API
	Users []APIUserConfig `mapstructure:"users" yaml:"users,omitempty"`
}

// JWTConfig configures operator session tokens.
type JWTConfig struct {
	// Secret signs access and refresh tokens (HS256).
	// Required when Users are configured; minimum 32 characters.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// AccessTTL is the access token lifetime
	// Default: 15m
	AccessTTL time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`

	// RefreshTTL is the refresh token lifetime
	// Default: 168h (7 days)
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
}

// APIUserConfig defines an operator account.
type APIUserConfig struct {
	// Username is the operator login name
	Username string `mapstructure:"username" validate:"required" yaml:"username"`

	// PasswordHash is the bcrypt hash of the operator password.
	// Generate one with: seekctl hash-password
	PasswordHash string `mapstructure:"password_hash" validate:"required" yaml:"password_hash"`
}

// BlacklistConfig configures the IP blacklist source file.
// Blacklisted peers are refused transfers and agent connections.
type BlacklistConfig struct {
	// Path is the blacklist file. Empty disables blacklisting.
	// Supported formats: CIDR lists, PeerGuardian P2P, eMule DAT.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Format forces a specific parser
	// Valid values: auto, cidr, p2p, dat
	// Default: auto (detected from content)
	Format string `mapstructure:"format" validate:"omitempty,oneof=auto cidr p2p dat" yaml:"format"`
}

// RoomsConfig configures chat rooms joined after each login.
type RoomsConfig struct {
	// AutoJoin lists room names joined automatically after login
	AutoJoin []string `mapstructure:"auto_join" yaml:"auto_join,omitempty"`
}

// IntegrationConfig configures outbound event webhooks.
type IntegrationConfig struct {
	// Webhooks lists HTTP endpoints notified of daemon events
	Webhooks []WebhookConfig `mapstructure:"webhooks" yaml:"webhooks,omitempty"`
}

// WebhookConfig defines one outbound webhook.
type WebhookConfig struct {
	// URL receives a JSON POST for each matching event
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`

	// Events filters which event types are delivered.
	// Empty delivers all events.
	Events []string `mapstructure:"events" yaml:"events,omitempty"`

	// Timeout bounds each delivery attempt
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SEEKD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: User-friendly error with instructions if config not found
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  seekd config init\n\n"+
				"Or specify a custom config file:\n"+
				"  seekd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  seekd config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file carries credentials and the agent secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitConfig writes a default configuration file to the default location.
// It refuses to overwrite an existing file unless force is set.
// Returns the path of the written file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal default config: %w", err)
	}

	header := "# seekd configuration file\n" +
		"# Generated by 'seekd config init'. All values shown are defaults;\n" +
		"# set overlay.address and overlay credentials to go online.\n\n"

	if err := os.WriteFile(path, append([]byte(header), data...), 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use a SEEKD_ prefix and underscores
	// Example: SEEKD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SEEKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/seekd/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "seekd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "seekd")
}

// getDataDir returns the default data directory path.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to
// current directory (.) if home directory cannot be determined.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "seekd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "seekd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	return getDataDir()
}
