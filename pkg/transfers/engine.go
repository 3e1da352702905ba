// Package transfers implements the transfer engine: the queueing,
// scheduling, and byte-movement core of the daemon.
//
// Every download and upload is tracked as a Transfer moving through a
// strict state machine. Queued transfers wait in per-direction schedulers
// that walk policy groups by priority and admit work subject to slot caps
// and bandwidth budgets. Every state transition is persisted before any
// observer hears about it, so a restart can rebuild the exact queue state.
package transfers

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/groups"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/store"
)

// ContentResolver maps overlay filenames to content locations. Satisfied
// by *shares.Index.
type ContentResolver interface {
	Resolve(ctx context.Context, remoteName string) (shares.Resolution, error)
}

// GroupResolver assigns users to policy groups. Satisfied by
// *groups.Resolver.
type GroupResolver interface {
	Resolve(username string) groups.Group
	Groups() []groups.Group
}

// Persister is the transfer row storage. Satisfied by *store.TransferStore.
type Persister interface {
	Save(ctx context.Context, rec *store.TransferRecord) error
	Get(ctx context.Context, id string) (*store.TransferRecord, error)
	List(ctx context.Context, direction string) ([]store.TransferRecord, error)
	NonTerminal(ctx context.Context, terminalStates []string) ([]store.TransferRecord, error)
	Delete(ctx context.Context, id string) error
}

// AgentFetcher streams agent-hosted file content for uploads. done must be
// called exactly once with the upload outcome so the agent can settle its
// side of the transfer.
type AgentFetcher interface {
	GetFile(ctx context.Context, agent, path string, size int64) (stream io.ReadCloser, done func(error), err error)
}

// Options carries the engine's dependencies.
type Options struct {
	Transfers config.TransfersConfig
	Client    overlay.Client
	Contents  ContentResolver
	Groups    GroupResolver

	// Agents may be nil when no agent fabric is configured; uploads of
	// agent-hosted files then fail as not found.
	Agents AgentFetcher

	Store Persister
	Bus   *events.Bus
}

// Engine owns all transfer state.
type Engine struct {
	client   overlay.Client
	contents ContentResolver
	groups   GroupResolver
	agents   AgentFetcher
	store    Persister
	bus      *events.Bus
	governor *Governor

	cfgMu sync.RWMutex
	cfg   config.TransfersConfig

	registries [2]*registry
	schedulers [2]*scheduler

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewEngine builds an engine. Call Start to recover persisted transfers
// and begin scheduling.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		client:   opts.Client,
		contents: opts.Contents,
		groups:   opts.Groups,
		agents:   opts.Agents,
		store:    opts.Store,
		bus:      opts.Bus,
		governor: NewGovernor(),
		cfg:      opts.Transfers,
	}
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	e.registries[Download] = newRegistry()
	e.registries[Upload] = newRegistry()
	e.schedulers[Download] = newScheduler(Download, opts.Transfers.Downloads.Slots, opts.Groups, e.governor,
		func(h *handle, g groups.Group) { e.startPump(Download, h, g) })
	e.schedulers[Upload] = newScheduler(Upload, opts.Transfers.Uploads.Slots, opts.Groups, e.governor,
		func(h *handle, g groups.Group) { e.startPump(Upload, h, g) })
	e.syncLimits()
	return e
}

// Start recovers persisted transfers and starts the scheduler loops.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return err
	}
	for _, s := range e.schedulers {
		e.wg.Add(1)
		go func(s *scheduler) {
			defer e.wg.Done()
			s.run()
		}(s)
	}
	return nil
}

// Close cancels active transfers and stops scheduling. Blocks until pumps
// unwind or ctx expires.
func (e *Engine) Close(ctx context.Context) error {
	for _, s := range e.schedulers {
		s.close()
	}
	e.baseCancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return seekerr.Wrap(seekerr.KindTimeout, "waiting for transfers to stop", ctx.Err())
	}
}

// Reconfigure applies a new transfers section. Slot and speed changes take
// effect on the next scheduling pass; directory changes apply to transfers
// enqueued afterwards.
func (e *Engine) Reconfigure(cfg config.TransfersConfig) {
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	e.schedulers[Download].reconfigure(cfg.Downloads.Slots)
	e.schedulers[Upload].reconfigure(cfg.Uploads.Slots)
	e.syncLimits()
}

// SyncGroupLimits refreshes per-group bandwidth buckets after the group
// layout changed.
func (e *Engine) SyncGroupLimits() {
	e.syncLimits()
}

func (e *Engine) syncLimits() {
	e.cfgMu.RLock()
	down := e.cfg.Downloads.SpeedLimit.Int64()
	up := e.cfg.Uploads.SpeedLimit.Int64()
	e.cfgMu.RUnlock()
	e.governor.SetGlobalLimit(Download, down)
	e.governor.SetGlobalLimit(Upload, up)

	seen := make(map[string]bool)
	for _, g := range e.groups.Groups() {
		seen[g.Name] = true
		e.governor.SetGroupLimit(Download, g.Name, g.SpeedLimit)
		e.governor.SetGroupLimit(Upload, g.Name, g.SpeedLimit)
	}
	for _, name := range e.governor.GroupNames() {
		if !seen[name] {
			e.governor.DropGroup(name)
		}
	}
}

func (e *Engine) config() config.TransfersConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// EnqueueDownload queues a file for download from a peer. The transfer
// enters QueuedLocally and waits for a scheduler slot.
func (e *Engine) EnqueueDownload(ctx context.Context, username, remoteFilename string, size int64) (Transfer, error) {
	if username == "" || remoteFilename == "" {
		return Transfer{}, seekerr.New(seekerr.KindInvalidArgument, "username and filename are required")
	}
	cfg := e.config()
	if min := cfg.Downloads.MinFreeSpace.Uint64(); min > 0 {
		free, err := freeBytes(cfg.Downloads.Directory)
		if err == nil && free < min {
			return Transfer{}, seekerr.New(seekerr.KindLocalIO, "destination filesystem below free space floor")
		}
	}
	if _, dup := e.registries[Download].findActive(username, remoteFilename); dup {
		return Transfer{}, seekerr.New(seekerr.KindAlreadyExists, "transfer already queued for this file")
	}

	h, err := e.create(ctx, Download, username, remoteFilename, "", size)
	if err != nil {
		return Transfer{}, err
	}
	snap, err := e.transition(ctx, h, StateQueuedLocally, nil)
	if err != nil {
		return Transfer{}, err
	}
	e.schedulers[Download].enqueue(h)
	return snap, nil
}

// EnqueueUpload admits a peer's request for a shared file. This is the
// overlay EnqueueDownload resolver hook: a returned error refuses the
// request and the refusal is relayed to the peer.
func (e *Engine) EnqueueUpload(ctx context.Context, username, remoteFilename string) error {
	if _, dup := e.registries[Upload].findActive(username, remoteFilename); dup {
		// The peer retried a request we already hold. Not an error.
		return nil
	}

	group := e.groups.Resolve(username)
	var refusal error
	var resolution shares.Resolution
	switch {
	case group.IsBlacklisted():
		refusal = seekerr.New(seekerr.KindBlacklisted, "user is blacklisted")
	default:
		var err error
		resolution, err = e.contents.Resolve(ctx, remoteFilename)
		if err != nil {
			refusal = seekerr.Wrap(seekerr.KindNotFound, "file not shared", err)
		}
	}

	h, err := e.create(ctx, Upload, username, remoteFilename, resolution.LocalPath, resolution.Size)
	if err != nil {
		return err
	}
	if refusal != nil {
		detail := failureOf(refusal)
		if _, err := e.transition(ctx, h, StateCompletedRejected, func(t *Transfer) {
			now := time.Now()
			t.EndedAt = &now
			t.Failure = detail
		}); err != nil {
			return err
		}
		return refusal
	}
	if _, err := e.transition(ctx, h, StateQueuedLocally, nil); err != nil {
		return err
	}
	e.schedulers[Upload].enqueue(h)
	return nil
}

// Get returns one transfer.
func (e *Engine) Get(direction Direction, username string, id uuid.UUID) (Transfer, error) {
	h, ok := e.registries[direction].get(newKey(direction, username, id))
	if !ok {
		return Transfer{}, seekerr.New(seekerr.KindNotFound, "transfer not found")
	}
	return h.snapshot(), nil
}

// List returns all transfers for a direction ordered by enqueue time.
func (e *Engine) List(direction Direction) []Transfer {
	return e.registries[direction].list(nil)
}

// Cancel aborts a transfer. Queued transfers complete as Cancelled at
// once; active transfers are interrupted and given five seconds to unwind
// before the terminal state is forced. With remove set, the transfer row
// is deleted once terminal.
func (e *Engine) Cancel(ctx context.Context, direction Direction, username string, id uuid.UUID, remove bool) error {
	k := newKey(direction, username, id)
	h, ok := e.registries[direction].get(k)
	if !ok {
		return seekerr.New(seekerr.KindNotFound, "transfer not found")
	}

	h.mu.Lock()
	state := h.t.State
	if state.IsTerminal() {
		h.mu.Unlock()
		if remove {
			return e.removeTerminal(ctx, k, h)
		}
		return nil
	}
	h.cancelRequested = true
	h.removeOnExit = remove
	cancel := h.cancel
	h.mu.Unlock()

	if cancel == nil {
		// Still queued; withdraw and complete immediately.
		if e.schedulers[direction].withdraw(h) || state == StateRequested {
			if _, err := e.transition(ctx, h, StateCompletedCancelled, func(t *Transfer) {
				now := time.Now()
				t.EndedAt = &now
			}); err != nil {
				return err
			}
			if remove {
				return e.removeTerminal(ctx, k, h)
			}
			return nil
		}
		// Lost the race with admission; the pump owns it now.
		h.mu.Lock()
		cancel = h.cancel
		h.mu.Unlock()
	}
	if cancel != nil {
		cancel()
		go e.watchCancel(h)
	}
	return nil
}

// watchCancel forces the Cancelled terminal state when a pump does not
// unwind within the grace period.
func (e *Engine) watchCancel(h *handle) {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if prev, snap, changed := e.markTerminal(h, StateCompletedCancelled, nil); changed {
			logger.Warn("transfer cancel grace period expired, forcing terminal state",
				logger.TransferID(snap.ID.String()))
			e.publishState(snap, prev)
		}
	}
}

// Remove deletes a terminal transfer from the registry and the store.
// Non-terminal transfers are cancelled first and removed once they unwind.
func (e *Engine) Remove(ctx context.Context, direction Direction, username string, id uuid.UUID) error {
	return e.Cancel(ctx, direction, username, id, true)
}

func (e *Engine) removeTerminal(ctx context.Context, k key, h *handle) error {
	snap := h.snapshot()
	if err := e.store.Delete(ctx, snap.ID.String()); err != nil && !seekerr.IsNotFound(err) {
		return err
	}
	e.registries[k.direction].remove(k)
	e.bus.Publish(events.TransferEvent{
		BaseEvent:  events.NewBase(events.EventTransferRemoved),
		TransferID: snap.ID.String(),
		Direction:  snap.Direction.String(),
		Username:   snap.Username,
		Filename:   snap.RemoteFilename,
		State:      snap.State.String(),
	})
	return nil
}

// PlaceInQueue reports a download's queue position. Locally queued
// transfers report their scheduler position; remotely queued downloads ask
// the peer.
func (e *Engine) PlaceInQueue(ctx context.Context, direction Direction, username string, id uuid.UUID) (int, error) {
	h, ok := e.registries[direction].get(newKey(direction, username, id))
	if !ok {
		return 0, seekerr.New(seekerr.KindNotFound, "transfer not found")
	}
	snap := h.snapshot()
	switch snap.State {
	case StateQueuedLocally:
		if pos := e.schedulers[direction].queuePosition(h); pos > 0 {
			return pos, nil
		}
		return 0, seekerr.New(seekerr.KindPreconditionFailed, "transfer is not queued")
	case StateQueuedRemotely:
		place, err := e.client.PlaceInQueue(ctx, snap.Username, snap.RemoteFilename)
		if err != nil {
			return 0, err
		}
		h.mu.Lock()
		h.t.PlaceInQueue = &place
		h.mu.Unlock()
		return place, nil
	default:
		return 0, seekerr.New(seekerr.KindPreconditionFailed, "transfer is not queued")
	}
}

// create persists a new transfer in Requested and registers it.
func (e *Engine) create(ctx context.Context, direction Direction, username, remoteFilename, localFilename string, size int64) (*handle, error) {
	t := Transfer{
		ID:             uuid.New(),
		Direction:      direction,
		Username:       username,
		RemoteFilename: remoteFilename,
		LocalFilename:  localFilename,
		Size:           size,
		State:          StateRequested,
		EnqueuedAt:     time.Now(),
	}
	h := &handle{t: t}
	if !e.registries[direction].add(newKey(direction, username, t.ID), h) {
		return nil, seekerr.New(seekerr.KindAlreadyExists, "transfer id collision")
	}
	if err := e.store.Save(ctx, recordOf(&t)); err != nil {
		e.registries[direction].remove(newKey(direction, username, t.ID))
		return nil, err
	}
	e.bus.Publish(events.TransferEvent{
		BaseEvent:  events.NewBase(events.EventTransferEnqueued),
		TransferID: t.ID.String(),
		Direction:  direction.String(),
		Username:   username,
		Filename:   remoteFilename,
		State:      t.State.String(),
		Size:       size,
	})
	return h, nil
}

// transition moves a transfer to a new state, persisting the row before
// publishing the change. mutate runs under the handle lock after the state
// is set.
func (e *Engine) transition(ctx context.Context, h *handle, to State, mutate func(*Transfer)) (Transfer, error) {
	h.mu.Lock()
	prev := h.t.State
	if !canTransition(prev, to) {
		h.mu.Unlock()
		return Transfer{}, seekerr.Newf(seekerr.KindPreconditionFailed,
			"illegal transfer transition %s -> %s", prev, to)
	}
	h.t.State = to
	if mutate != nil {
		mutate(&h.t)
	}
	snap := h.t
	err := e.store.Save(ctx, recordOf(&snap))
	h.mu.Unlock()
	if err != nil {
		logger.Error("persisting transfer transition",
			logger.TransferID(snap.ID.String()),
			logger.State(to.String()),
			logger.Err(err))
	}
	e.publishState(snap, prev)
	return snap, nil
}

// markTerminal records a terminal state without publishing, so callers can
// release scheduler slots first. Returns false when the transfer already
// reached a terminal state.
func (e *Engine) markTerminal(h *handle, to State, fail *FailureDetail) (prev State, snapshot Transfer, changed bool) {
	h.mu.Lock()
	if h.t.State.IsTerminal() || !canTransition(h.t.State, to) {
		snap := h.t
		h.mu.Unlock()
		return snap.State, snap, false
	}
	prev = h.t.State
	h.t.State = to
	now := time.Now()
	h.t.EndedAt = &now
	h.t.Failure = fail
	snap := h.t
	err := e.store.Save(context.Background(), recordOf(&snap))
	h.mu.Unlock()
	if err != nil {
		logger.Error("persisting terminal transfer state",
			logger.TransferID(snap.ID.String()),
			logger.State(to.String()),
			logger.Err(err))
	}
	return prev, snap, true
}

func (e *Engine) publishState(t Transfer, prev State) {
	ev := events.TransferEvent{
		BaseEvent:   events.NewBase(events.EventTransferStateChanged),
		TransferID:  t.ID.String(),
		Direction:   t.Direction.String(),
		Username:    t.Username,
		Filename:    t.RemoteFilename,
		PrevState:   prev.String(),
		State:       t.State.String(),
		Size:        t.Size,
		Bytes:       t.BytesTransferred,
		AverageRate: t.AverageSpeed,
	}
	if t.Failure != nil {
		ev.Failure = t.Failure.Kind
	}
	e.bus.Publish(ev)
}

// recover rebuilds the registry from persisted rows. Interrupted uploads
// always fail; interrupted downloads fail or requeue per configuration.
func (e *Engine) recover(ctx context.Context) error {
	resume := e.config().ResumeOnStartup

	for _, direction := range []Direction{Download, Upload} {
		recs, err := e.store.List(ctx, direction.String())
		if err != nil {
			return err
		}
		for i := range recs {
			t, err := transferOf(&recs[i])
			if err != nil {
				logger.Warn("skipping unreadable transfer row",
					logger.TransferID(recs[i].ID), logger.Err(err))
				continue
			}
			h := &handle{t: t}

			if !t.State.IsTerminal() {
				switch {
				case direction == Download && resume == config.ResumeRequeue:
					h.t.State = StateQueuedLocally
					h.t.StartOffset = h.t.BytesTransferred
					h.t.Failure = nil
				default:
					h.t.State = StateCompletedErrored
					now := time.Now()
					h.t.EndedAt = &now
					h.t.Failure = &FailureDetail{
						Kind:    seekerr.KindInternal.String(),
						Message: "interrupted by daemon shutdown",
					}
				}
				if err := e.store.Save(ctx, recordOf(&h.t)); err != nil {
					return err
				}
			}

			e.registries[direction].add(newKey(direction, t.Username, t.ID), h)
			if h.t.State == StateQueuedLocally {
				e.schedulers[direction].enqueue(h)
			}
		}
	}
	return nil
}

// failureOf maps an error to the failure detail recorded on a terminal
// transfer.
func failureOf(err error) *FailureDetail {
	if err == nil {
		return nil
	}
	kind := seekerr.KindOf(err)
	msg := err.Error()
	// Trim the kind prefix the error string already carries.
	if cut, ok := strings.CutPrefix(msg, kind.String()+": "); ok {
		msg = cut
	}
	return &FailureDetail{Kind: kind.String(), Message: msg}
}
