package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/internal/telemetry"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/daemon"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/spf13/cobra"
)

// NewOverlayClient builds the peer-protocol client the daemon drives.
// Distributions link their protocol library by replacing this factory
// before Execute runs; the stock binary refuses to start without one.
var NewOverlayClient = func(cfg *config.Config) (overlay.Client, error) {
	return nil, seekerr.New(seekerr.KindConfiguration,
		"no overlay protocol client is linked into this build")
}

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the seekd daemon",
	Long: `Start the seekd daemon with the specified configuration.

The daemon runs in the foreground until interrupted; use a process
supervisor for background operation.

Examples:
  # Start with the default config location
  seekd start

  # Start with a custom config file
  seekd start --config /etc/seekd/config.yaml

  # Start with environment variable overrides
  SEEKD_LOGGING_LEVEL=DEBUG seekd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "seekd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "seekd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	client, err := NewOverlayClient(cfg)
	if err != nil {
		return err
	}

	configPath := GetConfigFile()
	if configPath == "" && config.DefaultConfigExists() {
		configPath = config.GetDefaultConfigPath()
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Client:     client,
		Version:    Version,
		Commit:     Commit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, fmt.Appendf(nil, "%d", os.Getpid()), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- d.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Daemon is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Daemon shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Daemon stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Daemon error", logger.Err(err))
			return err
		}
		logger.Info("Daemon stopped")
	}

	return nil
}
