package transfers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/groups"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
)

const (
	// persistCadence bounds how often in-flight progress is written to
	// the store.
	persistCadence = 5 * time.Second

	// publishCadence bounds how often progress events reach the bus.
	publishCadence = time.Second
)

// startPump claims the admitted transfer and runs its byte movement on a
// dedicated goroutine. The scheduler slot is held until the pump unwinds.
func (e *Engine) startPump(direction Direction, h *handle, group groups.Group) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	done := make(chan struct{})

	h.mu.Lock()
	if h.t.State.IsTerminal() {
		h.mu.Unlock()
		cancel()
		e.schedulers[direction].release(group.Name)
		return
	}
	h.cancel = cancel
	h.done = done
	h.group = group.Name
	requested := h.cancelRequested
	h.mu.Unlock()
	if requested {
		cancel()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer close(done)
		if direction == Download {
			e.runDownload(ctx, h, group)
		} else {
			e.runUpload(ctx, h, group)
		}
	}()
}

// finish records the terminal state, returns the scheduler slot, and only
// then publishes, so a freed slot is observable before the completion
// event.
func (e *Engine) finish(direction Direction, h *handle, group string, to State, cause error) {
	var fail *FailureDetail
	if cause != nil && to != StateCompletedCancelled {
		fail = failureOf(cause)
	}
	prev, snap, changed := e.markTerminal(h, to, fail)
	e.schedulers[direction].release(group)
	if changed {
		e.publishState(snap, prev)
	}

	h.mu.Lock()
	remove := h.removeOnExit
	h.mu.Unlock()
	if remove {
		k := newKey(direction, snap.Username, snap.ID)
		if err := e.removeTerminal(context.Background(), k, h); err != nil {
			logger.Warn("removing cancelled transfer",
				logger.TransferID(snap.ID.String()), logger.Err(err))
		}
	}
}

// terminalFor classifies a pump failure into its terminal state.
func (e *Engine) terminalFor(h *handle, err error) State {
	h.mu.Lock()
	requested := h.cancelRequested
	h.mu.Unlock()
	switch {
	case requested, errors.Is(err, context.Canceled), seekerr.Is(err, seekerr.KindCancelled):
		return StateCompletedCancelled
	case errors.Is(err, context.DeadlineExceeded), seekerr.IsTimeout(err):
		return StateCompletedTimedOut
	default:
		return StateCompletedErrored
	}
}

func (e *Engine) runDownload(ctx context.Context, h *handle, group groups.Group) {
	snap := h.snapshot()
	cfg := e.config()

	finalPath, stagePath, err := e.downloadPaths(cfg.Downloads.Directory, cfg.Downloads.IncompleteDirectory, snap)
	if err != nil {
		e.finish(Download, h, group.Name, StateCompletedErrored, err)
		return
	}

	// A partial stage file from an earlier attempt resumes in place.
	var offset int64
	if fi, statErr := os.Stat(stagePath); statErr == nil {
		offset = fi.Size()
	}
	h.mu.Lock()
	h.t.LocalFilename = finalPath
	h.t.StartOffset = offset
	h.mu.Unlock()

	if err := e.client.EnqueueDownload(ctx, snap.Username, snap.RemoteFilename); err != nil {
		e.finish(Download, h, group.Name, e.terminalFor(h, err), err)
		return
	}
	if _, err := e.transition(ctx, h, StateQueuedRemotely, nil); err != nil {
		e.finish(Download, h, group.Name, StateCompletedCancelled, nil)
		return
	}

	tracker := newProgress(e, h)
	opts := overlay.TransferOptions{
		StartOffset: offset,
		Governor:    e.governor.Stream(Download, group.Name),
		OnStarted: func() {
			now := time.Now()
			if _, err := e.transition(context.Background(), h, StateInitializing, func(t *Transfer) {
				t.StartedAt = &now
			}); err != nil {
				logger.Debug("download already left queued state",
					logger.TransferID(snap.ID.String()))
			}
		},
		OnProgress: tracker.observe,
	}

	n, err := e.client.Download(ctx, snap.Username, snap.RemoteFilename, stagePath, opts)
	if err != nil {
		e.finish(Download, h, group.Name, e.terminalFor(h, err), err)
		return
	}

	if err := os.Rename(stagePath, finalPath); err != nil {
		err = seekerr.Wrap(seekerr.KindLocalIO, "moving completed download", err)
		e.finish(Download, h, group.Name, StateCompletedErrored, err)
		return
	}

	h.mu.Lock()
	h.t.BytesTransferred = n
	h.mu.Unlock()
	e.finish(Download, h, group.Name, StateCompletedSucceeded, nil)
	logger.Info("download complete",
		logger.TransferID(snap.ID.String()),
		logger.Username(snap.Username),
		logger.Filename(snap.RemoteFilename),
		logger.Bytes(n))
}

func (e *Engine) runUpload(ctx context.Context, h *handle, group groups.Group) {
	snap := h.snapshot()

	now := time.Now()
	if _, err := e.transition(ctx, h, StateInitializing, func(t *Transfer) {
		t.StartedAt = &now
	}); err != nil {
		e.finish(Upload, h, group.Name, StateCompletedCancelled, nil)
		return
	}

	// Resolve again at admission: the catalog may have changed since the
	// peer queued the request.
	resolution, err := e.contents.Resolve(ctx, snap.RemoteFilename)
	if err != nil {
		e.finish(Upload, h, group.Name, StateCompletedErrored, err)
		return
	}

	var stream io.ReadCloser
	var agentDone func(error)
	if resolution.Agent != "" {
		if e.agents == nil {
			err := seekerr.New(seekerr.KindNotFound, "agent fabric not configured")
			e.finish(Upload, h, group.Name, StateCompletedErrored, err)
			return
		}
		stream, agentDone, err = e.agents.GetFile(ctx, resolution.Agent, resolution.Path, resolution.Size)
		if err != nil {
			e.finish(Upload, h, group.Name, e.terminalFor(h, err), err)
			return
		}
	} else {
		f, openErr := os.Open(resolution.LocalPath)
		if openErr != nil {
			err := seekerr.Wrap(seekerr.KindLocalIO, "opening shared file", openErr)
			e.finish(Upload, h, group.Name, StateCompletedErrored, err)
			return
		}
		stream = f
	}

	tracker := newProgress(e, h)
	opts := overlay.TransferOptions{
		Governor:   e.governor.Stream(Upload, group.Name),
		OnProgress: tracker.observe,
	}
	err = e.client.Upload(ctx, snap.Username, snap.RemoteFilename, resolution.Size, stream, opts)
	stream.Close()
	if agentDone != nil {
		agentDone(err)
	}
	if err != nil {
		e.finish(Upload, h, group.Name, e.terminalFor(h, err), err)
		return
	}

	h.mu.Lock()
	h.t.BytesTransferred = resolution.Size
	speed := h.t.AverageSpeed
	h.mu.Unlock()
	e.finish(Upload, h, group.Name, StateCompletedSucceeded, nil)

	if speed > 0 {
		if err := e.client.SendUploadSpeed(context.Background(), int(speed)); err != nil {
			logger.Debug("reporting upload speed", logger.Err(err))
		}
	}
	logger.Info("upload complete",
		logger.TransferID(snap.ID.String()),
		logger.Username(snap.Username),
		logger.Filename(snap.RemoteFilename),
		logger.Bytes(resolution.Size))
}

// downloadPaths derives the final and staging paths for a download,
// creating both directories. The stage name is keyed by transfer ID so
// restarts resume the same partial file.
func (e *Engine) downloadPaths(dir, incompleteDir string, t Transfer) (finalPath, stagePath string, err error) {
	base := localBaseName(t.RemoteFilename)
	if base == "" {
		return "", "", seekerr.New(seekerr.KindInvalidArgument, "remote filename has no base name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", seekerr.Wrap(seekerr.KindLocalIO, "creating download directory", err)
	}
	if err := os.MkdirAll(incompleteDir, 0o755); err != nil {
		return "", "", seekerr.Wrap(seekerr.KindLocalIO, "creating incomplete directory", err)
	}
	return uniquePath(filepath.Join(dir, base)),
		filepath.Join(incompleteDir, t.ID.String()+"_"+base),
		nil
}

// localBaseName extracts the last path element of an overlay filename.
func localBaseName(remote string) string {
	if i := strings.LastIndexByte(remote, '\\'); i >= 0 {
		remote = remote[i+1:]
	}
	base := filepath.Base(filepath.Clean("/" + remote))
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// uniquePath appends a numeric suffix until the path does not exist.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// progress folds byte-count callbacks into the live transfer: the first
// callback marks InProgress, later ones update the rolling average speed
// and persist and publish on their cadences.
type progress struct {
	e *Engine
	h *handle

	mu          sync.Mutex
	started     bool
	lastAt      time.Time
	lastBytes   int64
	lastPublish time.Time
}

func newProgress(e *Engine, h *handle) *progress {
	return &progress{e: e, h: h}
}

// speedAlpha weights the newest sample in the rolling average.
const speedAlpha = 0.3

func (p *progress) observe(n int64) {
	now := time.Now()

	p.mu.Lock()
	first := !p.started
	if first {
		p.started = true
		p.lastAt = now
		p.lastBytes = n
	}
	var instant float64
	sampled := false
	if dt := now.Sub(p.lastAt); dt >= time.Second {
		instant = float64(n-p.lastBytes) / dt.Seconds()
		p.lastAt = now
		p.lastBytes = n
		sampled = true
	}
	publish := now.Sub(p.lastPublish) >= publishCadence
	if publish {
		p.lastPublish = now
	}
	p.mu.Unlock()

	if first {
		if _, err := p.e.transition(context.Background(), p.h, StateInProgress, nil); err != nil {
			logger.Debug("transfer progressed past initializing out of order")
		}
	}

	p.h.mu.Lock()
	p.h.t.BytesTransferred = n
	if sampled {
		if p.h.t.AverageSpeed == 0 {
			p.h.t.AverageSpeed = instant
		} else {
			p.h.t.AverageSpeed = speedAlpha*instant + (1-speedAlpha)*p.h.t.AverageSpeed
		}
	}
	persist := now.Sub(p.h.lastPersist) >= persistCadence
	if persist {
		p.h.lastPersist = now
	}
	snap := p.h.t
	p.h.mu.Unlock()

	if persist {
		if err := p.e.store.Save(context.Background(), recordOf(&snap)); err != nil {
			logger.Debug("persisting transfer progress", logger.Err(err))
		}
	}
	if publish {
		p.e.bus.Publish(events.TransferEvent{
			BaseEvent:   events.NewBase(events.EventTransferProgress),
			TransferID:  snap.ID.String(),
			Direction:   snap.Direction.String(),
			Username:    snap.Username,
			Filename:    snap.RemoteFilename,
			State:       snap.State.String(),
			Size:        snap.Size,
			Bytes:       snap.BytesTransferred,
			AverageRate: snap.AverageSpeed,
		})
	}
}
