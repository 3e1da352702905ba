// Package agents runs the controller side of the agent fabric.
//
// Agents are subordinate seekd-agent processes that federate their local
// shares into this controller. Each agent dials the fabric's TCP listener
// and completes a challenge-response handshake keyed by the shared secret.
// After that the connection is a long-lived control channel: the controller
// asks agents for file metadata and upload streams, agents push share
// catalogs and failure notices. Bulk data never crosses the control
// channel; agents deliver file bytes over HTTP using one-shot tokens
// minted here.
package agents

import (
	"context"
	"crypto/rand"
	"io"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/internal/telemetry"
	"github.com/seekd/seekd/pkg/agents/wire"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/waits"
)

// challengeTTL bounds how long an issued handshake challenge stays valid.
const challengeTTL = 60 * time.Second

const (
	opFileInfo = "file_info"
)

// Catalog receives share listings pushed by agents.
type Catalog interface {
	SetAgentCatalog(agent string, files []shares.File)
	RemoveAgentCatalog(agent string)
}

// Options configures a Fabric.
type Options struct {
	Config config.AgentsConfig
	Shares Catalog
	Bus    *events.Bus

	// Blocklist rejects inbound connections by remote address before the
	// handshake. Nil admits everything. Satisfied by *blacklist.Blacklist.
	Blocklist interface{ Contains(netip.Addr) bool }
}

// Fabric accepts agent control connections and brokers requests to them.
type Fabric struct {
	cfg       config.AgentsConfig
	shares    Catalog
	bus       *events.Bus
	blocklist interface{ Contains(netip.Addr) bool }

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	waits   *waits.Registry
	tickets *ticketTable

	mu    sync.Mutex
	conns map[string]*agentConn
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Name         string    `json:"name"`
	ConnectionID string    `json:"connection_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// agentConn is one authenticated agent connection.
type agentConn struct {
	id          string
	name        string
	conn        net.Conn
	connectedAt time.Time

	// writeMu serializes frames from the ping loop and RPC callers.
	writeMu sync.Mutex
}

func (c *agentConn) send(t wire.Type, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteMessage(c.conn, t, payload)
}

// NewFabric creates an agent fabric. Call Serve to start accepting.
func NewFabric(opts Options) *Fabric {
	return &Fabric{
		cfg:       opts.Config,
		shares:    opts.Shares,
		bus:       opts.Bus,
		blocklist: opts.Blocklist,
		shutdown:  make(chan struct{}),
		waits:     waits.NewRegistry(),
		tickets:   newTicketTable(),
		conns:     make(map[string]*agentConn),
	}
}

// Serve binds the control-channel listener and accepts agent connections
// until the context is cancelled or Stop is called.
func (f *Fabric) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", f.cfg.Listen)
	if err != nil {
		return seekerr.Wrap(seekerr.KindConfiguration, "listen for agents", err)
	}
	f.listener = ln

	logger.Info("agent fabric listening", logger.RemoteAddr(ln.Addr().String()))

	go func() {
		select {
		case <-ctx.Done():
			f.Stop()
		case <-f.shutdown:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-f.shutdown:
				return nil
			default:
				return seekerr.Wrap(seekerr.KindInternal, "accept agent connection", err)
			}
		}
		f.wg.Add(1)
		go func(c net.Conn) {
			defer f.wg.Done()
			f.handleConn(c)
		}(conn)
	}
}

// Stop closes the listener and every live agent connection, then waits
// for connection handlers to drain.
func (f *Fabric) Stop() {
	f.stopOnce.Do(func() {
		close(f.shutdown)
		if f.listener != nil {
			_ = f.listener.Close()
		}
		f.mu.Lock()
		for _, c := range f.conns {
			_ = c.conn.Close()
		}
		f.mu.Unlock()
	})
	f.wg.Wait()
}

// Addr returns the bound listener address, for tests.
func (f *Fabric) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Agents lists the currently registered agents sorted by name.
func (f *Fabric) Agents() []AgentInfo {
	f.mu.Lock()
	infos := make([]AgentInfo, 0, len(f.conns))
	for _, c := range f.conns {
		infos = append(infos, AgentInfo{
			Name:         c.name,
			ConnectionID: c.id,
			RemoteAddr:   c.conn.RemoteAddr().String(),
			ConnectedAt:  c.connectedAt,
		})
	}
	f.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// handleConn runs the handshake and then the read loop for one connection.
func (f *Fabric) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr().String()
	if f.blocklist != nil {
		if ap, err := netip.ParseAddrPort(remote); err == nil && f.blocklist.Contains(ap.Addr()) {
			logger.Warn("agent connection refused, address blacklisted", logger.RemoteAddr(remote))
			return
		}
	}

	c, err := f.handshake(conn)
	if err != nil {
		logger.Warn("agent handshake failed", logger.RemoteAddr(remote), logger.Err(err))
		return
	}

	f.register(c)
	logger.Info("agent registered",
		logger.Agent(c.name), logger.ConnectionID(c.id), logger.RemoteAddr(remote))
	f.bus.Publish(events.AgentEvent{
		BaseEvent:    events.NewBase(events.EventAgentRegistered),
		Agent:        c.name,
		ConnectionID: c.id,
		RemoteAddr:   remote,
	})

	pingDone := make(chan struct{})
	go f.pingLoop(c, pingDone)

	err = f.readLoop(c)
	close(pingDone)

	if f.deregister(c) {
		failed := f.waits.FailAllFor(c.name,
			seekerr.Newf(seekerr.KindAgentDisconnected, "agent %s disconnected", c.name))
		failed += f.tickets.failAllFor(c.name,
			seekerr.Newf(seekerr.KindAgentDisconnected, "agent %s disconnected", c.name))
		f.shares.RemoveAgentCatalog(c.name)
		logger.Info("agent deregistered",
			logger.Agent(c.name), logger.ConnectionID(c.id), logger.Count(failed), logger.Err(err))
		f.bus.Publish(events.AgentEvent{
			BaseEvent:    events.NewBase(events.EventAgentDeregistered),
			Agent:        c.name,
			ConnectionID: c.id,
			RemoteAddr:   remote,
		})
	}
}

// handshake authenticates one connection: Hello in, a fresh 32-byte
// challenge out, a signed digest back. The challenge expires after
// challengeTTL; a slow or replayed login is refused.
func (f *Fabric) handshake(conn net.Conn) (*agentConn, error) {
	deadline := time.Now().Add(challengeTTL)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, seekerr.Wrap(seekerr.KindInternal, "set handshake deadline", err)
	}

	t, payload, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, seekerr.Wrap(seekerr.KindRemoteProtocol, "read hello", err)
	}
	if t != wire.TypeHello {
		return nil, seekerr.Newf(seekerr.KindRemoteProtocol, "expected hello, got %s", t)
	}
	var hello wire.Hello
	if err := wire.Decode(payload, &hello); err != nil {
		return nil, seekerr.Wrap(seekerr.KindRemoteProtocol, "decode hello", err)
	}
	if hello.Name == "" {
		return nil, seekerr.New(seekerr.KindRemoteProtocol, "agent declared an empty name")
	}

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, seekerr.Wrap(seekerr.KindInternal, "generate challenge", err)
	}
	issued := time.Now()
	if err := wire.WriteMessage(conn, wire.TypeChallenge, wire.Challenge{Token: challenge}); err != nil {
		return nil, seekerr.Wrap(seekerr.KindInternal, "send challenge", err)
	}

	t, payload, err = wire.ReadMessage(conn)
	if err != nil {
		return nil, seekerr.Wrap(seekerr.KindRemoteProtocol, "read login", err)
	}
	if t != wire.TypeLogin {
		return nil, seekerr.Newf(seekerr.KindRemoteProtocol, "expected login, got %s", t)
	}
	var login wire.Login
	if err := wire.Decode(payload, &login); err != nil {
		return nil, seekerr.Wrap(seekerr.KindRemoteProtocol, "decode login", err)
	}

	if time.Since(issued) > challengeTTL {
		_ = wire.WriteMessage(conn, wire.TypeLoginResult,
			wire.LoginResult{OK: false, Message: "challenge expired"})
		return nil, seekerr.Newf(seekerr.KindUnauthorized, "agent %s presented an expired challenge", hello.Name)
	}
	if !wire.Verify(challenge, login.Digest, f.cfg.Secret) {
		_ = wire.WriteMessage(conn, wire.TypeLoginResult,
			wire.LoginResult{OK: false, Message: "bad digest"})
		return nil, seekerr.Newf(seekerr.KindUnauthorized, "agent %s failed challenge verification", hello.Name)
	}
	if err := wire.WriteMessage(conn, wire.TypeLoginResult, wire.LoginResult{OK: true}); err != nil {
		return nil, seekerr.Wrap(seekerr.KindInternal, "send login result", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, seekerr.Wrap(seekerr.KindInternal, "clear handshake deadline", err)
	}

	return &agentConn{
		id:          uuid.NewString(),
		name:        hello.Name,
		conn:        conn,
		connectedAt: time.Now(),
	}, nil
}

// register installs the connection under its agent name. A reconnecting
// agent replaces its prior registration; the stale connection is closed
// and its handler cleans up without deregistering the name.
func (f *Fabric) register(c *agentConn) {
	f.mu.Lock()
	prev := f.conns[c.name]
	f.conns[c.name] = c
	f.mu.Unlock()
	if prev != nil {
		logger.Warn("agent reconnected, replacing prior registration",
			logger.Agent(c.name), logger.ConnectionID(prev.id))
		_ = prev.conn.Close()
	}
}

// deregister removes the connection if it still owns its name. Returns
// false when a newer connection has already replaced it.
func (f *Fabric) deregister(c *agentConn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.conns[c.name]; ok && current == c {
		delete(f.conns, c.name)
		return true
	}
	return false
}

// lookup returns the live connection for an agent name.
func (f *Fabric) lookup(agent string) (*agentConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[agent]
	if !ok {
		return nil, seekerr.Newf(seekerr.KindAgentDisconnected, "agent %s is not connected", agent)
	}
	return c, nil
}

// pingLoop keeps the connection warm and detects dead peers.
func (f *Fabric) pingLoop(c *agentConn, done <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-f.shutdown:
			return
		case <-ticker.C:
			if err := c.send(wire.TypePing, wire.Ping{}); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// readLoop dispatches frames from one agent until the connection drops.
func (f *Fabric) readLoop(c *agentConn) error {
	for {
		t, payload, err := wire.ReadMessage(c.conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch t {
		case wire.TypeReturnFileInfo:
			var info wire.ReturnFileInfo
			if err := wire.Decode(payload, &info); err != nil {
				logger.Warn("bad file info reply", logger.Agent(c.name), logger.Err(err))
				continue
			}
			key := waits.Key{Op: opFileInfo, Counterparty: c.name, ID: info.ID}
			if !f.waits.Complete(key, info) {
				logger.Debug("file info reply with no waiter",
					logger.Agent(c.name), "id", info.ID)
			}

		case wire.TypeNotifyUploadFailed:
			var fail wire.NotifyUploadFailed
			if err := wire.Decode(payload, &fail); err != nil {
				logger.Warn("bad upload failure notice", logger.Agent(c.name), logger.Err(err))
				continue
			}
			failed := f.tickets.fail(fail.Token,
				seekerr.Newf(seekerr.KindAgentDisconnected, "agent %s reported upload failure: %s", c.name, fail.Message))
			logger.Warn("agent reported upload failure",
				logger.Agent(c.name), logger.Reason(fail.Message), "pending", failed)

		case wire.TypeBeginShareUpload:
			var begin wire.BeginShareUpload
			if err := wire.Decode(payload, &begin); err != nil {
				logger.Warn("bad share upload request", logger.Agent(c.name), logger.Err(err))
				continue
			}
			tk, err := f.tickets.issue(ticketShareUpload, c.name, "")
			if err != nil {
				logger.Error("issue share upload token", logger.Agent(c.name), logger.Err(err))
				continue
			}
			logger.Debug("share upload granted",
				logger.Agent(c.name), logger.Count(int(begin.Files)))
			if err := c.send(wire.TypeShareUploadGranted, wire.ShareUploadGranted{Token: tk.token}); err != nil {
				return err
			}

		case wire.TypePing:
			if err := c.send(wire.TypePong, wire.Pong{}); err != nil {
				return err
			}

		case wire.TypePong:
			// Keepalive reply, nothing to do.

		default:
			logger.Warn("unexpected frame from agent",
				logger.Agent(c.name), "type", t.String())
		}
	}
}

// GetFileInfo asks an agent whether it holds a file and how large it is.
func (f *Fabric) GetFileInfo(ctx context.Context, agent, filename string) (wire.ReturnFileInfo, error) {
	var zero wire.ReturnFileInfo

	ctx, span := telemetry.StartAgentSpan(ctx, telemetry.SpanAgentFileInfo, agent,
		telemetry.Filename(filename))
	defer span.End()

	c, err := f.lookup(agent)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return zero, err
	}

	key := waits.Key{Op: opFileInfo, Counterparty: agent, ID: uuid.NewString()}
	w, err := f.waits.Register(key)
	if err != nil {
		return zero, err
	}
	if err := c.send(wire.TypeRequestFileInfo, wire.RequestFileInfo{Filename: filename, ID: key.ID}); err != nil {
		f.waits.Fail(key, err)
		return zero, seekerr.Wrap(seekerr.KindAgentDisconnected, "request file info", err)
	}
	return waits.Await[wire.ReturnFileInfo](ctx, f.waits, key, w, f.cfg.RequestTimeout)
}

// GetFile asks an agent to open an upload stream for one of its files.
//
// A one-shot token is minted and sent over the control channel; the agent
// redeems it with an HTTP POST carrying the file body. The returned stream
// is that request's body. The caller must invoke done exactly once when
// finished reading; it releases the agent's HTTP request with the
// transfer's outcome. If the agent does not post within the configured
// request timeout the token is withdrawn and a later redemption attempt
// is refused.
func (f *Fabric) GetFile(ctx context.Context, agent, path string, size int64) (io.ReadCloser, func(error), error) {
	ctx, span := telemetry.StartAgentSpan(ctx, telemetry.SpanAgentGetFile, agent,
		telemetry.Filename(path), telemetry.Size(size))
	defer span.End()

	c, err := f.lookup(agent)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, nil, err
	}

	tk, err := f.tickets.issue(ticketFileUpload, agent, path)
	if err != nil {
		return nil, nil, seekerr.Wrap(seekerr.KindInternal, "issue upload token", err)
	}
	if err := c.send(wire.TypeRequestFileUpload, wire.RequestFileUpload{Filename: path, Token: tk.token}); err != nil {
		f.tickets.withdraw(tk.token)
		return nil, nil, seekerr.Wrap(seekerr.KindAgentDisconnected, "request file upload", err)
	}

	logger.Debug("file upload requested",
		logger.Agent(agent), logger.Path(path), logger.Size(size))

	timer := time.NewTimer(f.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-tk.stream:
		return f.acceptStream(tk, res)
	case <-timer.C:
		if f.tickets.withdraw(tk.token) {
			return nil, nil, seekerr.Newf(seekerr.KindTimeout,
				"agent %s did not deliver %s within %s", agent, path, f.cfg.RequestTimeout)
		}
		// Redeemed concurrently with the timeout; the stream is coming.
		return f.acceptStream(tk, <-tk.stream)
	case <-ctx.Done():
		if f.tickets.withdraw(tk.token) {
			return nil, nil, seekerr.Wrap(seekerr.KindCancelled, "awaiting agent upload", ctx.Err())
		}
		return f.acceptStream(tk, <-tk.stream)
	}
}

// acceptStream unwraps a resolved stream promise. The done callback posts
// the outcome to the blocked HTTP handler.
func (f *Fabric) acceptStream(tk *ticket, res streamResult) (io.ReadCloser, func(error), error) {
	if res.err != nil {
		return nil, nil, res.err
	}
	done := func(err error) {
		select {
		case tk.completion <- err:
		default:
		}
	}
	return res.body, done, nil
}
