package searches

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/store"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]*store.SearchRecord
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*store.SearchRecord)}
}

func (s *memStore) Create(_ context.Context, rec *store.SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, rec *store.SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[rec.ID]
	if !ok {
		return seekerr.Newf(seekerr.KindNotFound, "search %s", rec.ID)
	}
	cur.State = rec.State
	cur.EndedAt = rec.EndedAt
	cur.ResponseCount = rec.ResponseCount
	cur.FileCount = rec.FileCount
	return nil
}

func (s *memStore) AddResponse(_ context.Context, searchID string, resp *store.SearchResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[searchID]
	if !ok {
		return seekerr.Newf(seekerr.KindNotFound, "search %s", searchID)
	}
	cur.Responses = append(cur.Responses, *resp)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*store.SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, seekerr.Newf(seekerr.KindNotFound, "search %s", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) List(_ context.Context, _ int) ([]store.SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.SearchRecord
	for _, rec := range s.recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return seekerr.Newf(seekerr.KindNotFound, "search %s", id)
	}
	delete(s.recs, id)
	return nil
}

func (s *memStore) state(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok {
		return rec.State
	}
	return ""
}

// searchClient implements only the Search call; the manager touches
// nothing else on the overlay client.
type searchClient struct {
	overlay.Client
	release chan error
}

func (c *searchClient) Search(ctx context.Context, _ string, _ overlay.Scope, _ uint32, _ overlay.SearchOptions) error {
	select {
	case err := <-c.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fixedResponder struct {
	files []shares.File
}

func (r *fixedResponder) Search(context.Context, string) ([]shares.File, error) {
	return r.files, nil
}

func startManager(t *testing.T) (*Manager, *memStore, *searchClient) {
	t.Helper()
	st := newMemStore()
	client := &searchClient{release: make(chan error, 1)}
	bus := events.NewBus(64)
	m := NewManager(Options{
		Client:  client,
		Shares:  &fixedResponder{},
		Store:   st,
		Bus:     bus,
		Timeout: time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = m.Close(ctx)
		bus.Close()
	})
	return m, st, client
}

func waitForState(t *testing.T, st *memStore, id, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st.state(id) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("search %s state = %q, want %q", id, st.state(id), want)
}

func TestBeginPersistsAndCompletes(t *testing.T) {
	m, st, client := startManager(t)

	rec, err := m.Begin(context.Background(), "deep purple", overlay.ScopeNetwork, overlay.SearchOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if st.state(rec.ID) != StateInProgress {
		t.Fatalf("state after Begin = %q, want in_progress", st.state(rec.ID))
	}
	if rec.Token == 0 && rec.ID == "" {
		t.Fatalf("record missing identifiers: %+v", rec)
	}

	client.release <- nil
	waitForState(t, st, rec.ID, StateCompleted)
}

func TestBeginRejectsEmptyText(t *testing.T) {
	m, _, _ := startManager(t)
	if _, err := m.Begin(context.Background(), "", overlay.ScopeNetwork, overlay.SearchOptions{}); !seekerr.Is(err, seekerr.KindInvalidArgument) {
		t.Fatalf("error = %v, want InvalidArgument", err)
	}
}

func TestResponsesRecordedWhileRunning(t *testing.T) {
	m, st, client := startManager(t)

	rec, err := m.Begin(context.Background(), "query", overlay.ScopeNetwork, overlay.SearchOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	m.OnSearchResponse(overlay.SearchResponse{
		Username: "alice",
		Token:    rec.Token,
		Files: []overlay.File{
			{Name: "Music\\a.flac", Size: 100},
			{Name: "Music\\b.flac", Size: 200},
		},
		HasFreeSlot: true,
	})
	m.OnSearchResponse(overlay.SearchResponse{
		Username: "bob",
		Token:    rec.Token,
		Files:    []overlay.File{{Name: "Music\\c.flac", Size: 300}},
	})

	client.release <- nil
	waitForState(t, st, rec.ID, StateCompleted)

	got, err := m.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResponseCount != 2 || got.FileCount != 3 {
		t.Fatalf("counts = %d responses / %d files, want 2/3", got.ResponseCount, got.FileCount)
	}
	if len(got.Responses) != 2 {
		t.Fatalf("stored responses = %d, want 2", len(got.Responses))
	}
}

func TestLateResponseDropped(t *testing.T) {
	m, st, client := startManager(t)

	rec, err := m.Begin(context.Background(), "query", overlay.ScopeNetwork, overlay.SearchOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	client.release <- nil
	waitForState(t, st, rec.ID, StateCompleted)

	m.OnSearchResponse(overlay.SearchResponse{Username: "late", Token: rec.Token,
		Files: []overlay.File{{Name: "x"}}})

	got, err := m.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResponseCount != 0 || len(got.Responses) != 0 {
		t.Fatalf("late response was recorded: %+v", got)
	}
}

func TestCancelStopsRunningSearch(t *testing.T) {
	m, st, _ := startManager(t)

	rec, err := m.Begin(context.Background(), "query", overlay.ScopeNetwork, overlay.SearchOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !m.Cancel(rec.ID) {
		t.Fatalf("Cancel returned false for a running search")
	}
	waitForState(t, st, rec.ID, StateCancelled)

	if m.Cancel(rec.ID) {
		t.Fatalf("Cancel returned true for a settled search")
	}
}

func TestDeleteRunningSearchRefused(t *testing.T) {
	m, st, client := startManager(t)

	rec, err := m.Begin(context.Background(), "query", overlay.ScopeNetwork, overlay.SearchOptions{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Delete(context.Background(), rec.ID); !seekerr.Is(err, seekerr.KindPreconditionFailed) {
		t.Fatalf("Delete running = %v, want PreconditionFailed", err)
	}

	client.release <- nil
	waitForState(t, st, rec.ID, StateCompleted)
	if err := m.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete settled: %v", err)
	}
}

func TestAnswerInboundConvertsCatalogFiles(t *testing.T) {
	st := newMemStore()
	bus := events.NewBus(16)
	defer bus.Close()
	m := NewManager(Options{
		Client: &searchClient{},
		Shares: &fixedResponder{files: []shares.File{
			{Path: "Music\\album\\song.mp3", Size: 4096, Extension: "mp3",
				Audio: &shares.AudioProperties{BitRate: 320, DurationSecs: 215}},
			{Path: "Music\\album\\cover.jpg", Size: 100, Extension: "jpg"},
		}},
		Store: st,
		Bus:   bus,
	})

	files, err := m.AnswerInbound(context.Background(), overlay.SearchRequest{
		Username: "peer", Token: 77, Query: "album",
	})
	if err != nil {
		t.Fatalf("AnswerInbound: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("answered %d files, want 2", len(files))
	}
	if files[0].Name != "Music\\album\\song.mp3" || files[0].BitRate != 320 {
		t.Fatalf("first file = %+v", files[0])
	}
	if files[1].BitRate != 0 {
		t.Fatalf("non-audio file carries audio attributes: %+v", files[1])
	}
}
