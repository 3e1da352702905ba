// Package session keeps one authenticated, logged-in connection to the
// overlay coordination server.
//
// The controller owns a single loop goroutine. It connects and logs in
// with exponential backoff, re-reading credentials from the live
// configuration before every attempt, then parks until the connection is
// lost. Network failures re-enter the backoff loop; operator disconnects,
// invalid credentials, and displacement by another login leave the session
// down until the operator intervenes.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/state"
)

// Phase is the session's position in its connection lifecycle.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	LoggingIn
	LoggedIn
)

// String returns the phase name as published to the state store.
func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	default:
		return "disconnected"
	}
}

// ShareCounter reports the catalog size advertised after login. Satisfied
// by *shares.Index.
type ShareCounter interface {
	Counts() (directories, files int)
}

// Options carries the controller's dependencies. Overlay and Rooms are
// read fresh on every use so configuration changes take effect without
// restarting the controller.
type Options struct {
	Client  overlay.Client
	Overlay func() config.OverlayConfig
	Rooms   func() []string
	Shares  ShareCounter
	States  *state.Store
	Bus     *events.Bus

	// Resolvers are the daemon's inbound hooks. The controller wraps
	// OnDisconnected to drive its own loop and forwards the rest.
	Resolvers overlay.Resolvers
}

type disconnect struct {
	reason overlay.DisconnectReason
	err    error
}

// Controller runs the session lifecycle.
type Controller struct {
	client overlay.Client
	cfg    func() config.OverlayConfig
	rooms  func() []string
	shares ShareCounter
	states *state.Store
	bus    *events.Bus

	mu           sync.Mutex
	phase        Phase
	reconnecting bool
	started      bool

	wake        chan struct{}
	disconnects chan disconnect
	done        chan struct{}
	cancelRun   context.CancelFunc
}

// NewController wires the controller and installs the inbound hooks on the
// client. Call Start to begin connecting.
func NewController(opts Options) *Controller {
	c := &Controller{
		client:      opts.Client,
		cfg:         opts.Overlay,
		rooms:       opts.Rooms,
		shares:      opts.Shares,
		states:      opts.States,
		bus:         opts.Bus,
		wake:        make(chan struct{}, 1),
		disconnects: make(chan disconnect, 4),
		done:        make(chan struct{}),
	}
	if c.rooms == nil {
		c.rooms = func() []string { return nil }
	}

	resolvers := opts.Resolvers
	forward := resolvers.OnDisconnected
	resolvers.OnDisconnected = func(reason overlay.DisconnectReason, err error) {
		// Phase reports the loss immediately; event publication and the
		// reconnect decision stay in the loop.
		c.mu.Lock()
		c.phase = Disconnected
		c.mu.Unlock()
		select {
		case c.disconnects <- disconnect{reason: reason, err: err}:
		default:
		}
		if forward != nil {
			forward(reason, err)
		}
	}
	c.client.SetResolvers(resolvers)
	return c
}

// Start launches the loop and schedules the first connection attempt.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.mu.Unlock()

	go c.run(ctx)
	c.trigger()
}

// Close tears the session down and stops the loop.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return seekerr.Wrap(seekerr.KindTimeout, "waiting for session loop", ctx.Err())
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Connect schedules a connection attempt. No-op while already logged in.
func (c *Controller) Connect() {
	c.trigger()
}

// Disconnect ends the session deliberately. The session stays down until
// Connect is called.
func (c *Controller) Disconnect() error {
	if c.Phase() == Disconnected {
		return nil
	}
	return c.client.Disconnect("requested by operator")
}

// Reconnect tears the session down and schedules an immediate reconnect,
// for configuration changes that require a fresh login.
func (c *Controller) Reconnect() {
	c.mu.Lock()
	c.reconnecting = true
	phase := c.phase
	c.mu.Unlock()
	if phase == Disconnected {
		c.trigger()
		return
	}
	if err := c.client.Disconnect("reconnecting with new configuration"); err != nil {
		logger.Warn("disconnect for reconnect", logger.Err(err))
		c.trigger()
	}
}

// ApplyOptions pushes the reconfigurable client options and reconnects when
// the client reports the change needs a fresh session.
func (c *Controller) ApplyOptions(cfg config.OverlayConfig) {
	patch := overlay.OptionsPatch{
		ListenPort:            &cfg.ListenPort,
		DistributedEnabled:    &cfg.Distributed.Enabled,
		DistributedChildLimit: &cfg.Distributed.ChildLimit,
		ConnectTimeout:        &cfg.ConnectTimeout,
	}
	if c.client.ReconfigureOptions(patch) && c.Phase() == LoggedIn {
		c.Reconnect()
	}
}

func (c *Controller) trigger() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.disconnects:
			// Stale notification from a session already handled.
			continue
		case <-c.wake:
		}
		if c.Phase() == LoggedIn {
			continue
		}

		if err := c.establish(ctx); err != nil {
			// Permanent failure or shutdown; stay down.
			continue
		}

		select {
		case <-ctx.Done():
			if err := c.client.Disconnect("daemon shutting down"); err != nil {
				logger.Debug("disconnect on shutdown", logger.Err(err))
			}
			c.setPhase(Disconnected, 0, "shutdown")
			return
		case d := <-c.disconnects:
			c.handleDisconnect(d)
		}
	}
}

func (c *Controller) handleDisconnect(d disconnect) {
	reason := d.reason.String()
	c.setPhase(Disconnected, 0, reason)
	c.bus.Publish(events.SessionEvent{
		BaseEvent: events.NewBase(events.EventSessionDisconnected),
		State:     Disconnected.String(),
		Server:    c.cfg().Address,
		Reason:    reason,
	})
	if d.err != nil {
		logger.Warn("overlay connection lost", logger.Reason(reason), logger.Err(d.err))
	} else {
		logger.Info("overlay session ended", logger.Reason(reason))
	}

	c.mu.Lock()
	again := c.reconnecting || d.reason == overlay.DisconnectNetwork
	c.reconnecting = false
	c.mu.Unlock()
	if again {
		c.trigger()
	}
}

// establish runs the connect+login sequence under exponential backoff.
// Each attempt reads the current configuration, so corrected credentials
// are picked up without restarting the loop. Returns nil once logged in.
func (c *Controller) establish(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.RandomizationFactor = 0.1
	bo.Multiplier = 2
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		err := c.attempt(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if seekerr.IsUnauthorized(err) {
			logger.Error("overlay login refused, not retrying",
				logger.Username(c.cfg().Username), logger.Err(err))
			c.setPhase(Disconnected, attempt, "invalid credentials")
			return err
		}

		delay := bo.NextBackOff()
		logger.Warn("overlay connection attempt failed",
			logger.Attempt(attempt),
			logger.Delay(delay),
			logger.Err(err))
		c.setPhase(Disconnected, attempt, "retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-c.disconnects:
			// A deliberate disconnect during backoff aborts the loop.
			if d.reason == overlay.DisconnectRequested {
				return seekerr.New(seekerr.KindCancelled, "disconnected while reconnecting")
			}
		case <-time.After(delay):
		}
	}
}

func (c *Controller) attempt(ctx context.Context, attempt int) error {
	cfg := c.cfg()
	if cfg.Address == "" || cfg.Username == "" {
		return seekerr.New(seekerr.KindConfiguration, "overlay address and username are required")
	}

	c.setPhase(Connecting, attempt, "")
	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := c.client.Connect(connectCtx, cfg.Address); err != nil {
		return err
	}
	c.setPhase(Connected, attempt, "")

	c.setPhase(LoggingIn, attempt, "")
	if err := c.client.Login(connectCtx, cfg.Username, cfg.Password); err != nil {
		if derr := c.client.Disconnect("login failed"); derr != nil {
			logger.Debug("disconnect after failed login", logger.Err(derr))
		}
		// Drain the notification our own disconnect produced.
		select {
		case <-c.disconnects:
		default:
		}
		return err
	}
	c.setPhase(LoggedIn, attempt, "")
	c.afterLogin(ctx, cfg)
	return nil
}

// afterLogin publishes the session, advertises share counts, and joins the
// configured rooms.
func (c *Controller) afterLogin(ctx context.Context, cfg config.OverlayConfig) {
	logger.Info("logged in to overlay",
		logger.Server(cfg.Address),
		logger.Username(cfg.Username))
	c.bus.Publish(events.SessionEvent{
		BaseEvent: events.NewBase(events.EventSessionLoggedIn),
		State:     LoggedIn.String(),
		Server:    cfg.Address,
		Username:  cfg.Username,
	})

	if c.shares != nil {
		dirs, files := c.shares.Counts()
		if err := c.client.SetSharedCounts(ctx, dirs, files); err != nil {
			logger.Warn("advertising share counts", logger.Err(err))
		}
	}
	for _, room := range c.rooms() {
		if err := c.client.JoinRoom(ctx, room); err != nil {
			logger.Warn("joining room", logger.Reason(room), logger.Err(err))
		}
	}
}

// setPhase records the phase and publishes it to the state store and bus.
func (c *Controller) setPhase(phase Phase, attempt int, reason string) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()

	cfg := c.cfg()
	if c.states != nil {
		c.states.Update(func(s state.Snapshot) state.Snapshot {
			return s.WithServer(state.ServerState{
				Address:   cfg.Address,
				State:     phase.String(),
				Username:  cfg.Username,
				Connected: phase == Connected || phase == LoggingIn || phase == LoggedIn,
				LoggedIn:  phase == LoggedIn,
			})
		})
	}
	c.bus.Publish(events.SessionEvent{
		BaseEvent: events.NewBase(events.EventSessionStateChanged),
		State:     phase.String(),
		Server:    cfg.Address,
		Username:  cfg.Username,
		Attempt:   attempt,
		Reason:    reason,
	})
}
