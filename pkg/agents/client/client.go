// Package client implements the agent side of the agent fabric.
//
// The client keeps a control-channel connection to its controller, answers
// file metadata requests from the agent's local share index, and delivers
// file bytes and catalog snapshots over HTTP using the one-shot tokens the
// controller mints for it.
package client

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/agents"
	"github.com/seekd/seekd/pkg/agents/wire"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
)

// grantTimeout bounds the wait for a share-upload token after asking.
const grantTimeout = 30 * time.Second

// Options configures an agent client.
type Options struct {
	Config config.AgentConfig
	Shares *shares.Index
}

// Client is the agent's connection to its controller.
type Client struct {
	cfg    config.AgentConfig
	shares *shares.Index
	http   *http.Client

	writeMu sync.Mutex
	conn    net.Conn

	// grants resolves the pending share-upload token request. At most one
	// catalog sync is in flight at a time.
	grants chan string

	wg sync.WaitGroup
}

// New creates an agent client. Call Run to connect.
func New(opts Options) *Client {
	return &Client{
		cfg:    opts.Config,
		shares: opts.Shares,
		http:   &http.Client{},
		grants: make(chan string, 1),
	}
}

// Run connects to the controller and serves the control channel until the
// context is cancelled. Lost connections are redialed with exponential
// backoff; the backoff resets after each successful handshake.
func (c *Client) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.RandomizationFactor = 0.1
	policy.Multiplier = 2
	policy.MaxInterval = 5 * time.Minute
	policy.MaxElapsedTime = 0

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.wg.Wait()
			return nil
		}
		if seekerr.IsUnauthorized(err) {
			c.wg.Wait()
			return err
		}

		delay := policy.NextBackOff()
		logger.Warn("controller connection lost, reconnecting",
			logger.Err(err), logger.Delay(delay))
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection from dial to disconnect.
func (c *Client) session(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Controller.Address)
	if err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "dial controller", err)
	}
	defer func() { _ = conn.Close() }()

	if err := c.handshake(conn); err != nil {
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	logger.Info("connected to controller",
		logger.RemoteAddr(c.cfg.Controller.Address), logger.Agent(c.cfg.Name))

	// Close the connection when the context ends so the read loop unblocks.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	syncDone := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.syncLoop(ctx, syncDone)
	}()
	defer close(syncDone)

	return c.readLoop(ctx, conn)
}

// handshake authenticates against the controller's challenge.
func (c *Client) handshake(conn net.Conn) error {
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "set handshake deadline", err)
	}

	if err := wire.WriteMessage(conn, wire.TypeHello, wire.Hello{Name: c.cfg.Name}); err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "send hello", err)
	}

	t, payload, err := wire.ReadMessage(conn)
	if err != nil {
		return seekerr.Wrap(seekerr.KindRemoteProtocol, "read challenge", err)
	}
	if t != wire.TypeChallenge {
		return seekerr.Newf(seekerr.KindRemoteProtocol, "expected challenge, got %s", t)
	}
	var challenge wire.Challenge
	if err := wire.Decode(payload, &challenge); err != nil {
		return seekerr.Wrap(seekerr.KindRemoteProtocol, "decode challenge", err)
	}

	digest := wire.Sign(challenge.Token, c.cfg.Secret)
	if err := wire.WriteMessage(conn, wire.TypeLogin, wire.Login{Digest: digest}); err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "send login", err)
	}

	t, payload, err = wire.ReadMessage(conn)
	if err != nil {
		return seekerr.Wrap(seekerr.KindRemoteProtocol, "read login result", err)
	}
	if t != wire.TypeLoginResult {
		return seekerr.Newf(seekerr.KindRemoteProtocol, "expected login result, got %s", t)
	}
	var result wire.LoginResult
	if err := wire.Decode(payload, &result); err != nil {
		return seekerr.Wrap(seekerr.KindRemoteProtocol, "decode login result", err)
	}
	if !result.OK {
		return seekerr.Newf(seekerr.KindUnauthorized, "controller refused login: %s", result.Message)
	}

	return conn.SetDeadline(time.Time{})
}

// send writes one frame on the current connection.
func (c *Client) send(t wire.Type, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return seekerr.New(seekerr.KindPreconditionFailed, "not connected")
	}
	return wire.WriteMessage(c.conn, t, payload)
}

// readLoop serves controller requests until the connection drops.
func (c *Client) readLoop(ctx context.Context, conn net.Conn) error {
	for {
		t, payload, err := wire.ReadMessage(conn)
		if err != nil {
			if err == io.EOF {
				return seekerr.New(seekerr.KindAgentDisconnected, "controller closed the connection")
			}
			return err
		}

		switch t {
		case wire.TypeRequestFileInfo:
			var req wire.RequestFileInfo
			if err := wire.Decode(payload, &req); err != nil {
				logger.Warn("bad file info request", logger.Err(err))
				continue
			}
			info := wire.ReturnFileInfo{ID: req.ID}
			if res, err := c.shares.Resolve(ctx, req.Filename); err == nil {
				info.Exists = true
				info.Size = res.Size
			}
			if err := c.send(wire.TypeReturnFileInfo, info); err != nil {
				return err
			}

		case wire.TypeRequestFileUpload:
			var req wire.RequestFileUpload
			if err := wire.Decode(payload, &req); err != nil {
				logger.Warn("bad file upload request", logger.Err(err))
				continue
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.uploadFile(ctx, req)
			}()

		case wire.TypeShareUploadGranted:
			var grant wire.ShareUploadGranted
			if err := wire.Decode(payload, &grant); err != nil {
				logger.Warn("bad share upload grant", logger.Err(err))
				continue
			}
			select {
			case c.grants <- grant.Token:
			default:
			}

		case wire.TypePing:
			if err := c.send(wire.TypePong, wire.Pong{}); err != nil {
				return err
			}

		case wire.TypePong:
			// Keepalive reply, nothing to do.

		default:
			logger.Warn("unexpected frame from controller", "type", t.String())
		}
	}
}

// syncLoop pushes the catalog right after connecting and again on every
// sync interval until the connection ends.
func (c *Client) syncLoop(ctx context.Context, done <-chan struct{}) {
	if err := c.syncShares(ctx); err != nil {
		logger.Warn("share catalog sync failed", logger.Err(err))
	}

	ticker := time.NewTicker(c.cfg.ShareSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.shares.Refill(ctx); err != nil && !seekerr.Is(err, seekerr.KindPreconditionFailed) {
				logger.Warn("share rescan failed", logger.Err(err))
			}
			if err := c.syncShares(ctx); err != nil {
				logger.Warn("share catalog sync failed", logger.Err(err))
			}
		}
	}
}

// syncShares asks for an upload token and posts the full catalog.
func (c *Client) syncShares(ctx context.Context) error {
	files := c.shares.Current().Files()

	// Drain a stale grant from an earlier sync that timed out.
	select {
	case <-c.grants:
	default:
	}

	if err := c.send(wire.TypeBeginShareUpload, wire.BeginShareUpload{Files: int32(len(files))}); err != nil {
		return err
	}

	var token string
	select {
	case token = <-c.grants:
	case <-time.After(grantTimeout):
		return seekerr.New(seekerr.KindTimeout, "no share upload grant from controller")
	case <-ctx.Done():
		return ctx.Err()
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(files); err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "encode catalog", err)
	}

	url := fmt.Sprintf("%s/agents/shares/%s", c.cfg.Controller.URL, token)
	resp, err := c.post(ctx, url, token, &body)
	if err != nil {
		return seekerr.Wrap(seekerr.KindInternal, "upload catalog", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return seekerr.Newf(seekerr.KindInternal, "catalog upload refused: %s", resp.Status)
	}

	logger.Info("share catalog uploaded", logger.Count(len(files)))
	return nil
}

// uploadFile streams one local file to the controller under a one-shot
// token. The POST stays open until the controller's transfer settles, so
// a non-2xx status means the download side failed after handoff.
func (c *Client) uploadFile(ctx context.Context, req wire.RequestFileUpload) {
	res, err := c.shares.Resolve(ctx, req.Filename)
	if err != nil || res.LocalPath == "" {
		c.notifyFailure(req.Token, fmt.Sprintf("file not shared: %s", req.Filename))
		return
	}

	file, err := os.Open(res.LocalPath)
	if err != nil {
		c.notifyFailure(req.Token, fmt.Sprintf("open %s: %v", req.Filename, err))
		return
	}
	defer func() { _ = file.Close() }()

	logger.Info("uploading file to controller",
		logger.Path(req.Filename), logger.Size(res.Size))

	url := fmt.Sprintf("%s/agents/files/%s", c.cfg.Controller.URL, req.Token)
	resp, err := c.post(ctx, url, req.Token, file)
	if err != nil {
		logger.Warn("file upload failed", logger.Path(req.Filename), logger.Err(err))
		c.notifyFailure(req.Token, err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		logger.Warn("file upload refused",
			logger.Path(req.Filename), logger.Reason(resp.Status))
		return
	}
	logger.Info("file upload complete", logger.Path(req.Filename))
}

// post issues a signed POST for one token.
func (c *Client) post(ctx context.Context, url, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(agents.SignatureHeader, hex.EncodeToString(wire.Sign([]byte(token), c.cfg.Secret)))
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.http.Do(req)
}

// notifyFailure tells the controller a requested upload will not arrive.
func (c *Client) notifyFailure(token, message string) {
	if err := c.send(wire.TypeNotifyUploadFailed, wire.NotifyUploadFailed{Token: token, Message: message}); err != nil {
		logger.Warn("failed to report upload failure", logger.Err(err))
	}
}
