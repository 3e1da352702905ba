// Package daemon composes the seekd subsystems into one runnable unit.
//
// New wires the subsystems in dependency order: persistence, the event
// bus, the state store, the shared-file index, group resolution, the
// overlay session controller, the agent fabric, the transfer engine, the
// search manager, and the operator API. Serve starts them, kicks the
// first catalog scan, and blocks until the context ends, then unwinds in
// reverse order within the configured shutdown timeout.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/agents"
	"github.com/seekd/seekd/pkg/api"
	"github.com/seekd/seekd/pkg/blacklist"
	"github.com/seekd/seekd/pkg/clock"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/groups"
	"github.com/seekd/seekd/pkg/integration"
	"github.com/seekd/seekd/pkg/metrics"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/searches"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/session"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/state"
	"github.com/seekd/seekd/pkg/store"
	"github.com/seekd/seekd/pkg/transfers"
)

// eventBufferSize is the per-subscriber bus buffer.
const eventBufferSize = 256

// defaultShutdownTimeout bounds the unwind when the configuration carries
// no explicit shutdown timeout.
const defaultShutdownTimeout = 30 * time.Second

// Options carries everything New needs.
type Options struct {
	// Config is the validated boot configuration. Required.
	Config *config.Config

	// ConfigPath enables live reload of the configuration file when set.
	ConfigPath string

	// Client is the peer-protocol library implementation the daemon
	// drives. Required.
	Client overlay.Client

	Version string
	Commit  string
}

// Daemon is the composed seekd process.
type Daemon struct {
	client  overlay.Client
	cfgPath string

	mu  sync.RWMutex
	cfg *config.Config

	bus        *events.Bus
	states     *state.Store
	stores     *store.Databases
	ticks      *clock.Clock
	index      *shares.Index
	list       *blacklist.Blacklist
	peers      *peerTable
	resolver   *groups.Resolver
	controller *session.Controller
	engine     *transfers.Engine
	searches   *searches.Manager
	api        *api.Server

	// fabric, webhooks, and collector are nil when their configuration
	// leaves them disabled.
	fabric    *agents.Fabric
	webhooks  *integration.Dispatcher
	collector *metrics.Collector
}

// noAgents answers the agents API when no fabric is configured.
type noAgents struct{}

func (noAgents) Agents() []agents.AgentInfo { return nil }

// New builds a daemon from a validated configuration and an overlay
// client. Nothing is started; call Serve.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, seekerr.New(seekerr.KindInvalidArgument, "configuration is required")
	}
	if opts.Client == nil {
		return nil, seekerr.New(seekerr.KindInvalidArgument, "overlay client is required")
	}
	cfg := opts.Config

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	d := &Daemon{
		client:  opts.Client,
		cfgPath: opts.ConfigPath,
		cfg:     cfg,
		bus:     events.NewBus(eventBufferSize),
		peers:   newPeerTable(),
	}
	d.states = state.NewStore(state.Snapshot{
		Version: state.VersionInfo{Version: opts.Version, Commit: opts.Commit},
	})

	stores, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	d.stores = stores

	index, err := shares.New(cfg.Shares, d.states, d.bus)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	d.index = index

	d.list = blacklist.New()
	if cfg.Blacklist.Path != "" {
		format, err := blacklist.ParseFormat(cfg.Blacklist.Format)
		if err != nil {
			_ = d.closeStorage()
			return nil, err
		}
		n, err := d.list.LoadFile(cfg.Blacklist.Path, format)
		if err != nil {
			_ = d.closeStorage()
			return nil, err
		}
		logger.Info("blacklist loaded", logger.Path(cfg.Blacklist.Path), logger.Count(n))
	}

	d.resolver = groups.NewResolver(cfg.Groups, d.peers, d.peers, d.list)

	if cfg.Agents.Listen != "" {
		d.fabric = agents.NewFabric(agents.Options{
			Config:    cfg.Agents,
			Shares:    index,
			Bus:       d.bus,
			Blocklist: d.list,
		})
	}

	d.searches = searches.NewManager(searches.Options{
		Client: opts.Client,
		Shares: index,
		Store:  stores.Searches,
		Bus:    d.bus,
	})

	engineOpts := transfers.Options{
		Transfers: cfg.Transfers,
		Client:    opts.Client,
		Contents:  index,
		Groups:    d.resolver,
		Store:     stores.Transfers,
		Bus:       d.bus,
	}
	if d.fabric != nil {
		engineOpts.Agents = d.fabric
	}
	d.engine = transfers.NewEngine(engineOpts)

	d.controller = session.NewController(session.Options{
		Client:    opts.Client,
		Overlay:   func() config.OverlayConfig { return d.config().Overlay },
		Rooms:     func() []string { return d.config().Rooms.AutoJoin },
		Shares:    index,
		States:    d.states,
		Bus:       d.bus,
		Resolvers: d.resolvers(),
	})

	services := api.Services{
		Session:   d.controller,
		Transfers: d.engine,
		Shares:    index,
		Agents:    noAgents{},
		Searches:  d.searches,
		States:    d.states,
		Version:   opts.Version,
	}
	if d.fabric != nil {
		services.Agents = d.fabric
		services.AgentRoutes = d.fabric.Routes
	}
	apiServer, err := api.NewServer(cfg.API, services)
	if err != nil {
		_ = d.closeStorage()
		return nil, err
	}
	d.api = apiServer

	d.ticks = clock.New(d.bus)
	d.webhooks = integration.NewDispatcher(cfg.Integration, d.bus)
	d.collector = metrics.NewCollector(d.bus)

	return d, nil
}

// config returns the current configuration snapshot.
func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) setConfig(cfg *config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// States exposes the runtime state store.
func (d *Daemon) States() *state.Store { return d.states }

// Bus exposes the event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Serve runs the daemon until the context is cancelled or a component
// fails fatally.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.ticks.Start(); err != nil {
		return err
	}
	if err := d.engine.Start(ctx); err != nil {
		d.ticks.Stop()
		return err
	}

	errCh := make(chan error, 2)
	if d.fabric != nil {
		go func() {
			if err := d.fabric.Serve(ctx); err != nil {
				errCh <- err
			}
		}()
	}
	if d.collector != nil {
		go d.collector.Run(ctx)
	}
	if d.webhooks != nil {
		d.webhooks.Run(ctx)
	}

	go func() {
		if err := d.api.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	// First catalog fill. A cached catalog serves reads until it lands.
	go func() {
		if err := d.index.Refill(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("initial share scan failed", logger.Err(err))
		}
	}()

	if d.config().Overlay.Address != "" {
		d.controller.Start()
	} else {
		logger.Warn("no overlay server configured, session stays down")
	}

	var watcher *config.Watcher
	if d.cfgPath != "" {
		w, err := config.NewWatcher(d.cfgPath, d.config(), d.applyChange)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			logger.Warn("configuration watch unavailable", logger.Err(err))
		} else {
			watcher = w
		}
	}

	logger.Info("daemon running")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		cancel()
	}

	d.unwind(watcher)
	return serveErr
}

// unwind stops everything in reverse start order.
func (d *Daemon) unwind(watcher *config.Watcher) {
	timeout := d.config().ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	sdCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Close()
	}
	if err := d.controller.Close(sdCtx); err != nil {
		logger.Warn("session shutdown", logger.Err(err))
	}
	if d.fabric != nil {
		d.fabric.Stop()
	}
	if err := d.engine.Close(sdCtx); err != nil {
		logger.Warn("transfer engine shutdown", logger.Err(err))
	}
	if err := d.searches.Close(sdCtx); err != nil {
		logger.Warn("search manager shutdown", logger.Err(err))
	}
	if d.webhooks != nil {
		d.webhooks.Close()
	}
	d.ticks.Stop()
	_ = d.closeStorage()
	d.bus.Close()
	d.states.Close()
	logger.Info("daemon stopped")
}

func (d *Daemon) closeStorage() error {
	var first error
	if d.index != nil {
		if err := d.index.Close(); err != nil {
			first = err
		}
	}
	if d.stores != nil {
		if err := d.stores.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
