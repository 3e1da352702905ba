package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/agents/client"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
)

// eventBufferSize sizes the agent's local event bus. The agent has no
// subscribers; the bus only absorbs the share index's scan events.
const eventBufferSize = 64

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agent",
	Long: `Start the agent with the specified configuration.

The agent runs in the foreground until interrupted; use a process
supervisor for background operation.

Examples:
  # Start with a config file
  seekd-agent start --config /etc/seekd/agent.yaml

  # Start with environment variable overrides
  SEEKD_AGENT_LOGGING_LEVEL=DEBUG seekd-agent start --config agent.yaml`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return seekerr.New(seekerr.KindConfiguration, "an agent config file is required, pass --config")
	}

	cfg, err := config.LoadAgent(cfgFile)
	if err != nil {
		return err
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(eventBufferSize)
	defer bus.Close()

	index, err := shares.New(cfg.Shares, nil, bus)
	if err != nil {
		return fmt.Errorf("failed to initialize share index: %w", err)
	}
	defer func() { _ = index.Close() }()

	logger.Info("Scanning shared directories", logger.Count(len(cfg.Shares.Roots)))
	if err := index.Refill(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("initial share scan failed", logger.Err(err))
	}

	c := client.New(client.Options{
		Config: *cfg,
		Shares: index,
	})

	logger.Info("Agent is running. Press Ctrl+C to stop.",
		logger.Agent(cfg.Name), logger.RemoteAddr(cfg.Controller.Address))

	if err := c.Run(ctx); err != nil {
		logger.Error("Agent stopped", logger.Err(err))
		return err
	}
	logger.Info("Agent stopped gracefully")
	return nil
}
