// Package searches manages overlay searches issued by the operator and
// answers searches arriving from peers.
//
// An issued search lives in search.db from the moment it is created;
// responses stream in through the peer-protocol callback path and are
// appended as they arrive, so an operator can watch results accumulate
// while the search is still running.
package searches

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/internal/telemetry"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/store"
)

// Search states as persisted.
const (
	StateInProgress = "in_progress"
	StateCompleted  = "completed"
	StateCancelled  = "cancelled"
	StateErrored    = "errored"
)

// defaultTimeout ends a search when the caller does not pick one.
const defaultTimeout = 15 * time.Second

// Store is the slice of the search store the manager needs.
type Store interface {
	Create(ctx context.Context, rec *store.SearchRecord) error
	Update(ctx context.Context, rec *store.SearchRecord) error
	AddResponse(ctx context.Context, searchID string, resp *store.SearchResponseRecord) error
	Get(ctx context.Context, id string) (*store.SearchRecord, error)
	List(ctx context.Context, limit int) ([]store.SearchRecord, error)
	Delete(ctx context.Context, id string) error
}

// Responder answers inbound queries from the shared-file index.
type Responder interface {
	Search(ctx context.Context, query string) ([]shares.File, error)
}

// Options configures a Manager.
type Options struct {
	Client overlay.Client
	Shares Responder
	Store  Store
	Bus    *events.Bus

	// Timeout is the default per-search response window.
	Timeout time.Duration
}

// Manager issues searches, collects their responses, and answers peers.
type Manager struct {
	client  overlay.Client
	shares  Responder
	store   Store
	bus     *events.Bus
	timeout time.Duration

	mu     sync.Mutex
	active map[uint32]*activeSearch

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// activeSearch tracks one in-flight search.
type activeSearch struct {
	id        string
	cancel    context.CancelFunc
	responses atomic.Int64
	files     atomic.Int64
}

// NewManager creates a search manager.
func NewManager(opts Options) *Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:     opts.Client,
		shares:     opts.Shares,
		store:      opts.Store,
		bus:        opts.Bus,
		timeout:    timeout,
		active:     make(map[uint32]*activeSearch),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Close cancels every running search and waits for them to settle.
func (m *Manager) Close(ctx context.Context) error {
	m.baseCancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return seekerr.Wrap(seekerr.KindTimeout, "closing search manager", ctx.Err())
	}
}

// Begin issues a search and returns its persisted record immediately.
// Responses accumulate in the background until the response window closes.
func (m *Manager) Begin(ctx context.Context, text string, scope overlay.Scope, opts overlay.SearchOptions) (*store.SearchRecord, error) {
	if text == "" {
		return nil, seekerr.New(seekerr.KindInvalidArgument, "empty search text")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = m.timeout
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSearchBegin,
		trace.WithAttributes(telemetry.SearchText(text)))
	defer span.End()

	rec := &store.SearchRecord{
		ID:        uuid.NewString(),
		Text:      text,
		Token:     m.newToken(),
		State:     StateInProgress,
		StartedAt: time.Now().UTC(),
	}
	if err := m.store.Create(ctx, rec); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(m.baseCtx)
	as := &activeSearch{id: rec.ID, cancel: cancel}
	m.mu.Lock()
	m.active[rec.Token] = as
	m.mu.Unlock()

	logger.Info("search started",
		"search_id", rec.ID, "text", text, "scope", scope.String())
	m.bus.Publish(events.SearchEvent{
		BaseEvent: events.NewBase(events.EventSearchRequested),
		SearchID:  rec.ID,
		Text:      text,
		Token:     rec.Token,
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(runCtx, rec, as, scope, opts)
	}()

	return rec, nil
}

// run drives one search to its terminal state.
func (m *Manager) run(ctx context.Context, rec *store.SearchRecord, as *activeSearch, scope overlay.Scope, opts overlay.SearchOptions) {
	err := m.client.Search(ctx, rec.Text, scope, rec.Token, opts)

	m.mu.Lock()
	delete(m.active, rec.Token)
	m.mu.Unlock()

	switch {
	case err == nil:
		rec.State = StateCompleted
	case ctx.Err() != nil || seekerr.IsCancelled(err):
		rec.State = StateCancelled
	default:
		rec.State = StateErrored
		logger.Warn("search failed", "search_id", rec.ID, logger.Err(err))
	}
	now := time.Now().UTC()
	rec.EndedAt = &now
	rec.ResponseCount = int(as.responses.Load())
	rec.FileCount = int(as.files.Load())

	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Update(updateCtx, rec); err != nil {
		logger.Error("persisting search outcome", "search_id", rec.ID, logger.Err(err))
	}

	logger.Info("search settled", "search_id", rec.ID,
		logger.State(rec.State), logger.Count(rec.FileCount))
}

// OnSearchResponse records one peer's answer to a search this daemon
// issued. Wire into overlay.Resolvers. Responses for unknown or already
// settled tokens are dropped.
func (m *Manager) OnSearchResponse(resp overlay.SearchResponse) {
	m.mu.Lock()
	as, ok := m.active[resp.Token]
	m.mu.Unlock()
	if !ok {
		return
	}

	record := &store.SearchResponseRecord{
		Username:    resp.Username,
		HasFreeSlot: resp.HasFreeSlot,
		QueueLength: resp.QueueLength,
		UploadSpeed: resp.UploadSpeed,
		ReceivedAt:  time.Now().UTC(),
		Files:       make([]store.SearchFileRecord, 0, len(resp.Files)),
	}
	for _, f := range resp.Files {
		record.Files = append(record.Files, store.SearchFileRecord{
			Name:            f.Name,
			Size:            f.Size,
			Extension:       f.Extension,
			BitRate:         f.BitRate,
			SampleRate:      f.SampleRate,
			DurationSecs:    f.DurationSecs,
			VariableBitRate: f.VariableBitRate,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.AddResponse(ctx, as.id, record); err != nil {
		logger.Error("recording search response",
			"search_id", as.id, logger.Username(resp.Username), logger.Err(err))
		return
	}
	as.responses.Add(1)
	as.files.Add(int64(len(resp.Files)))

	m.bus.Publish(events.SearchEvent{
		BaseEvent: events.NewBase(events.EventSearchResponded),
		SearchID:  as.id,
		Username:  resp.Username,
		Token:     resp.Token,
		FileCount: len(resp.Files),
	})
}

// AnswerInbound answers a search arriving from a peer out of the visible
// share catalog. Wire into overlay.Resolvers. An empty result suppresses
// the response.
func (m *Manager) AnswerInbound(ctx context.Context, req overlay.SearchRequest) ([]overlay.File, error) {
	matches, err := m.shares.Search(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	files := make([]overlay.File, 0, len(matches))
	for _, f := range matches {
		out := overlay.File{
			Name:      f.Path,
			Size:      f.Size,
			Extension: f.Extension,
		}
		if f.Audio != nil {
			out.BitRate = f.Audio.BitRate
			out.SampleRate = f.Audio.SampleRate
			out.DurationSecs = f.Audio.DurationSecs
			out.VariableBitRate = f.Audio.VariableBitRate
		}
		files = append(files, out)
	}

	if len(files) > 0 {
		m.bus.Publish(events.SearchEvent{
			BaseEvent: events.NewBase(events.EventSearchRequested),
			Username:  req.Username,
			Text:      req.Query,
			Token:     req.Token,
			FileCount: len(files),
		})
	}
	return files, nil
}

// Cancel stops a running search. Settled searches are left untouched.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, as := range m.active {
		if as.id == id {
			as.cancel()
			return true
		}
	}
	return false
}

// Get returns one search with its responses.
func (m *Manager) Get(ctx context.Context, id string) (*store.SearchRecord, error) {
	return m.store.Get(ctx, id)
}

// List returns searches newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]store.SearchRecord, error) {
	return m.store.List(ctx, limit)
}

// Delete removes a settled search and its responses. A running search must
// be cancelled first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	for _, as := range m.active {
		if as.id == id {
			m.mu.Unlock()
			return seekerr.New(seekerr.KindPreconditionFailed, "search is still running")
		}
	}
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// newToken picks a token not used by any active search.
func (m *Manager) newToken() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		token := rand.Uint32()
		if _, taken := m.active[token]; !taken {
			return token
		}
	}
}
