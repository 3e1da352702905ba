package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyDataDirDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyDatabaseDefaults(&cfg.Database, cfg.DataDir)
	applyOverlayDefaults(&cfg.Overlay)
	applySharesDefaults(&cfg.Shares, cfg.DataDir)
	applyGroupsDefaults(&cfg.Groups)
	applyTransfersDefaults(&cfg.Transfers, cfg.DataDir)
	applyAgentsDefaults(&cfg.Agents)
	applyAPIDefaults(&cfg.API)
	applyBlacklistDefaults(&cfg.Blacklist)
	applyIntegrationDefaults(&cfg.Integration)
}

// applyDataDirDefaults resolves the data directory first so dependent
// sections can derive paths from it.
func applyDataDirDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = getDataDir()
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyDatabaseDefaults sets persistence defaults.
func applyDatabaseDefaults(cfg *DatabaseConfig, dataDir string) {
	if cfg.Type == "" {
		cfg.Type = "sqlite"
	}
	if cfg.SQLite.Directory == "" {
		cfg.SQLite.Directory = dataDir
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
}

// applyOverlayDefaults sets overlay session defaults.
// Address has no default: the daemon stays offline until one is configured.
func applyOverlayDefaults(cfg *OverlayConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 2250
	}
	if cfg.Distributed.ChildLimit == 0 {
		cfg.Distributed.ChildLimit = 25
	}
}

// applySharesDefaults sets shared-file index defaults.
func applySharesDefaults(cfg *SharesConfig, dataDir string) {
	if cfg.Storage == "" {
		cfg.Storage = "memory"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(dataDir, "shares")
	}
	if cfg.ScanWorkers == 0 {
		cfg.ScanWorkers = runtime.NumCPU()
	}
	if cfg.ResponseLimit == 0 {
		cfg.ResponseLimit = 100
	}
	if cfg.RemoveSingleCharacterSearchTerms == nil {
		remove := true
		cfg.RemoveSingleCharacterSearchTerms = &remove
	}
}

// applyGroupsDefaults sets group scheduling defaults.
func applyGroupsDefaults(cfg *GroupsConfig) {
	applyGroupDefaults(&cfg.Default, 500)
	applyGroupDefaults(&cfg.Leechers.GroupConfig, 900)

	// Leechers get one slot unless the operator says otherwise
	if cfg.Leechers.Slots == 0 {
		cfg.Leechers.Slots = 1
	}
	if cfg.Leechers.Thresholds.Files == 0 {
		cfg.Leechers.Thresholds.Files = 1
	}
	if cfg.Leechers.Thresholds.Directories == 0 {
		cfg.Leechers.Thresholds.Directories = 1
	}

	for name, group := range cfg.UserDefined {
		applyGroupDefaults(&group.GroupConfig, 500)
		cfg.UserDefined[name] = group
	}
}

// applyGroupDefaults sets defaults for a single group.
func applyGroupDefaults(cfg *GroupConfig, priority int) {
	if cfg.Priority == 0 {
		cfg.Priority = priority
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "round_robin"
	}
}

// applyTransfersDefaults sets transfer engine defaults.
func applyTransfersDefaults(cfg *TransfersConfig, dataDir string) {
	if cfg.ResumeOnStartup == "" {
		cfg.ResumeOnStartup = "errored"
	}
	if cfg.Downloads.Directory == "" {
		cfg.Downloads.Directory = filepath.Join(dataDir, "downloads")
	}
	if cfg.Downloads.IncompleteDirectory == "" {
		cfg.Downloads.IncompleteDirectory = filepath.Join(dataDir, "incomplete")
	}
	if cfg.Downloads.Slots == 0 {
		cfg.Downloads.Slots = 5
	}
	if cfg.Uploads.Slots == 0 {
		cfg.Uploads.Slots = 10
	}
}

// applyAgentsDefaults sets agent fabric defaults.
// Listen has no default: the fabric is disabled until an address is configured.
func applyAgentsDefaults(cfg *AgentsConfig) {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = time.Minute
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
}

// applyAPIDefaults sets operator API defaults.
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 15 * time.Minute
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = 168 * time.Hour
	}
}

// applyBlacklistDefaults sets blacklist defaults.
func applyBlacklistDefaults(cfg *BlacklistConfig) {
	if cfg.Path != "" && cfg.Format == "" {
		cfg.Format = "auto"
	}
}

// applyIntegrationDefaults sets webhook defaults.
func applyIntegrationDefaults(cfg *IntegrationConfig) {
	for i := range cfg.Webhooks {
		if cfg.Webhooks[i].Timeout == 0 {
			cfg.Webhooks[i].Timeout = 10 * time.Second
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
