package transfers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
	"github.com/seekd/seekd/pkg/groups"
	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/store"
)

// fakeStore keeps transfer rows in memory.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]store.TransferRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]store.TransferRecord)}
}

func (f *fakeStore) Save(_ context.Context, rec *store.TransferRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rec.ID] = *rec
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*store.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return nil, seekerr.New(seekerr.KindNotFound, "transfer not found")
	}
	return &rec, nil
}

func (f *fakeStore) List(_ context.Context, direction string) ([]store.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []store.TransferRecord
	for _, rec := range f.rows {
		if rec.Direction == direction {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].EnqueuedAt.Before(recs[j].EnqueuedAt) })
	return recs, nil
}

func (f *fakeStore) NonTerminal(_ context.Context, terminal []string) ([]store.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	isTerminal := make(map[string]bool, len(terminal))
	for _, s := range terminal {
		isTerminal[s] = true
	}
	var recs []store.TransferRecord
	for _, rec := range f.rows {
		if !isTerminal[rec.State] {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return seekerr.New(seekerr.KindNotFound, "transfer not found")
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeStore) state(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].State
}

// fakeGroups assigns users to groups from a static member table.
type fakeGroups struct {
	table  []groups.Group
	member map[string]string
}

func (f *fakeGroups) Resolve(username string) groups.Group {
	name, ok := f.member[strings.ToLower(username)]
	if !ok {
		name = groups.Default
	}
	for _, g := range f.table {
		if g.Name == name {
			return g
		}
	}
	return groups.Group{Name: groups.Default, Priority: 100}
}

func (f *fakeGroups) Groups() []groups.Group {
	out := make([]groups.Group, len(f.table))
	copy(out, f.table)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// fakeContents resolves shared filenames from a static map.
type fakeContents struct {
	files map[string]shares.Resolution
}

func (f *fakeContents) Resolve(_ context.Context, remoteName string) (shares.Resolution, error) {
	res, ok := f.files[remoteName]
	if !ok {
		return shares.Resolution{}, seekerr.New(seekerr.KindNotFound, "file is not shared")
	}
	return res, nil
}

// transferCall is one Download or Upload the fake client received. The test
// settles it by sending the outcome on proceed.
type transferCall struct {
	username string
	filename string
	body     string
	opts     overlay.TransferOptions
	proceed  chan error
}

// fakeClient records transfer calls and blocks them until the test settles
// each one.
type fakeClient struct {
	started    chan *transferCall
	enqueueErr error

	mu            sync.Mutex
	enqueued      []string
	uploadSpeeds  []int
	placeAnswered int
}

func newFakeClient() *fakeClient {
	return &fakeClient{started: make(chan *transferCall, 16)}
}

func (f *fakeClient) Connect(context.Context, string) error       { return nil }
func (f *fakeClient) Login(context.Context, string, string) error { return nil }
func (f *fakeClient) Disconnect(string) error                     { return nil }
func (f *fakeClient) SetResolvers(overlay.Resolvers)              {}
func (f *fakeClient) Search(context.Context, string, overlay.Scope, uint32, overlay.SearchOptions) error {
	return nil
}

func (f *fakeClient) EnqueueDownload(_ context.Context, peer, filename string) error {
	f.mu.Lock()
	f.enqueued = append(f.enqueued, peer+"/"+filename)
	f.mu.Unlock()
	return f.enqueueErr
}

func (f *fakeClient) Download(ctx context.Context, peer, filename, localPath string, opts overlay.TransferOptions) (int64, error) {
	if opts.OnStarted != nil {
		opts.OnStarted()
	}
	if opts.OnProgress != nil {
		opts.OnProgress(opts.StartOffset + 1)
	}
	call := &transferCall{username: peer, filename: filename, opts: opts, proceed: make(chan error, 1)}
	f.started <- call
	select {
	case err := <-call.proceed:
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(localPath, []byte("data"), 0o644); err != nil {
			return 0, err
		}
		return 4, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeClient) Upload(ctx context.Context, peer, filename string, size int64, stream io.Reader, opts overlay.TransferOptions) error {
	if opts.OnStarted != nil {
		opts.OnStarted()
	}
	body, err := io.ReadAll(stream)
	if err != nil {
		return err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(int64(len(body)))
	}
	call := &transferCall{username: peer, filename: filename, body: string(body), proceed: make(chan error, 1)}
	f.started <- call
	select {
	case err := <-call.proceed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeClient) Browse(context.Context, string) ([]overlay.Directory, error) { return nil, nil }

func (f *fakeClient) PlaceInQueue(context.Context, string, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeAnswered++
	return 7, nil
}

func (f *fakeClient) SendUploadSpeed(_ context.Context, bps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadSpeeds = append(f.uploadSpeeds, bps)
	return nil
}

func (f *fakeClient) SetSharedCounts(context.Context, int, int) error { return nil }
func (f *fakeClient) JoinRoom(context.Context, string) error          { return nil }
func (f *fakeClient) ReconfigureOptions(overlay.OptionsPatch) bool    { return false }

func testConfig(t *testing.T, downloadSlots, uploadSlots int) config.TransfersConfig {
	t.Helper()
	return config.TransfersConfig{
		ResumeOnStartup: config.ResumeErrored,
		Downloads: config.DownloadConfig{
			Directory:           t.TempDir(),
			IncompleteDirectory: t.TempDir(),
			Slots:               downloadSlots,
		},
		Uploads: config.UploadConfig{Slots: uploadSlots},
	}
}

func defaultGroups() *fakeGroups {
	return &fakeGroups{
		table: []groups.Group{
			{Name: groups.Default, Priority: 100, Strategy: groups.RoundRobin},
		},
		member: map[string]string{},
	}
}

func startEngine(t *testing.T, cfg config.TransfersConfig, client *fakeClient, fg *fakeGroups, contents *fakeContents) (*Engine, *fakeStore, *events.Bus) {
	t.Helper()
	if contents == nil {
		contents = &fakeContents{files: map[string]shares.Resolution{}}
	}
	st := newFakeStore()
	bus := events.NewBus(256)
	e := NewEngine(Options{
		Transfers: cfg,
		Client:    client,
		Contents:  contents,
		Groups:    fg,
		Store:     st,
		Bus:       bus,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("starting engine: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.Close(ctx)
		bus.Close()
	})
	return e, st, bus
}

func waitForState(t *testing.T, e *Engine, direction Direction, username string, id uuid.UUID, want State) Transfer {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tr, err := e.Get(direction, username, id)
		if err == nil && tr.State == want {
			return tr
		}
		time.Sleep(10 * time.Millisecond)
	}
	tr, _ := e.Get(direction, username, id)
	t.Fatalf("transfer never reached %s, last state %s", want, tr.State)
	return Transfer{}
}

func nextCall(t *testing.T, client *fakeClient) *transferCall {
	t.Helper()
	select {
	case call := <-client.started:
		return call
	case <-time.After(3 * time.Second):
		t.Fatal("no transfer started")
		return nil
	}
}

func TestDownloadLifecycle(t *testing.T) {
	client := newFakeClient()
	cfg := testConfig(t, 2, 2)
	e, st, _ := startEngine(t, cfg, client, defaultGroups(), nil)

	tr, err := e.EnqueueDownload(context.Background(), "alice", `music\album\song.mp3`, 4)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if tr.State != StateQueuedLocally {
		t.Fatalf("state after enqueue = %s, want queued_locally", tr.State)
	}

	call := nextCall(t, client)
	if call.username != "alice" {
		t.Errorf("download peer = %q", call.username)
	}
	call.proceed <- nil

	done := waitForState(t, e, Download, "alice", tr.ID, StateCompletedSucceeded)
	if done.LocalFilename == "" {
		t.Fatal("completed download has no local path")
	}
	if filepath.Dir(done.LocalFilename) != cfg.Downloads.Directory {
		t.Errorf("download landed in %s", done.LocalFilename)
	}
	if _, err := os.Stat(done.LocalFilename); err != nil {
		t.Errorf("final file missing: %v", err)
	}
	if st.state(tr.ID.String()) != "completed_succeeded" {
		t.Errorf("persisted state = %s", st.state(tr.ID.String()))
	}
}

func TestDuplicateDownloadRefused(t *testing.T) {
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	if _, err := e.EnqueueDownload(context.Background(), "alice", `a\b.flac`, 1); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := e.EnqueueDownload(context.Background(), "alice", `a\b.flac`, 1)
	if !seekerr.Is(err, seekerr.KindAlreadyExists) {
		t.Errorf("duplicate enqueue error = %v, want AlreadyExists", err)
	}
}

func TestGroupPriorityOrdersAdmission(t *testing.T) {
	client := newFakeClient()
	fg := &fakeGroups{
		table: []groups.Group{
			{Name: "vip", Priority: 1, Strategy: groups.FirstInFirstOut},
			{Name: groups.Default, Priority: 100, Strategy: groups.FirstInFirstOut},
		},
		member: map[string]string{"vera": "vip"},
	}
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, fg, nil)

	ctx := context.Background()
	blocker, err := e.EnqueueDownload(ctx, "dora", `d\blocker.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	hold := nextCall(t, client)

	// Lower-priority user queues first, higher-priority user second.
	if _, err := e.EnqueueDownload(ctx, "dora", `d\late.mp3`, 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := e.EnqueueDownload(ctx, "vera", `v\first.mp3`, 1); err != nil {
		t.Fatal(err)
	}

	hold.proceed <- nil
	waitForState(t, e, Download, "dora", blocker.ID, StateCompletedSucceeded)

	next := nextCall(t, client)
	if next.username != "vera" {
		t.Fatalf("slot went to %q, want the higher priority group's user", next.username)
	}
	next.proceed <- nil

	last := nextCall(t, client)
	if last.username != "dora" {
		t.Fatalf("final slot went to %q", last.username)
	}
	last.proceed <- nil
}

func TestRoundRobinRotatesUsers(t *testing.T) {
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	ctx := context.Background()
	blocker, err := e.EnqueueDownload(ctx, "carol", `c\hold.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	hold := nextCall(t, client)

	// Two from alice, then one from bob, all while the slot is held.
	if _, err := e.EnqueueDownload(ctx, "alice", `a\one.mp3`, 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := e.EnqueueDownload(ctx, "alice", `a\two.mp3`, 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := e.EnqueueDownload(ctx, "bob", `b\one.mp3`, 1); err != nil {
		t.Fatal(err)
	}

	hold.proceed <- nil
	waitForState(t, e, Download, "carol", blocker.ID, StateCompletedSucceeded)

	var order []string
	for i := 0; i < 3; i++ {
		call := nextCall(t, client)
		order = append(order, call.username+"/"+call.filename)
		call.proceed <- nil
	}
	want := []string{`alice/a\one.mp3`, `bob/b\one.mp3`, `alice/a\two.mp3`}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("admission order = %v, want %v", order, want)
		}
	}
}

func TestGroupSlotCapsConcurrency(t *testing.T) {
	files := map[string]shares.Resolution{}
	dir := t.TempDir()
	for _, name := range []string{"f1", "f2", "f3", "f4"} {
		local := filepath.Join(dir, name)
		if err := os.WriteFile(local, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		files[`s\`+name] = shares.Resolution{LocalPath: local, Size: 2}
	}

	fg := &fakeGroups{
		table: []groups.Group{
			{Name: groups.Default, Priority: 50, Strategy: groups.RoundRobin, Slots: 2},
			{Name: groups.Leechers, Priority: 100, Strategy: groups.RoundRobin, Slots: 1},
		},
		member: map[string]string{"leecher1": groups.Leechers},
	}
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 4, 4), client, fg, &fakeContents{files: files})

	ctx := context.Background()
	for _, req := range []struct{ user, file string }{
		{"alice", `s\f1`}, {"bob", `s\f2`}, {"leecher1", `s\f3`}, {"alice", `s\f4`},
	} {
		if err := e.EnqueueUpload(ctx, req.user, req.file); err != nil {
			t.Fatalf("enqueue %s: %v", req.file, err)
		}
	}

	// Two default slots plus the leecher slot admit three uploads.
	running := map[string]*transferCall{}
	for i := 0; i < 3; i++ {
		call := nextCall(t, client)
		running[call.filename] = call
	}
	for _, want := range []string{`s\f1`, `s\f2`, `s\f3`} {
		if _, ok := running[want]; !ok {
			t.Fatalf("%s not admitted, running: %v", want, running)
		}
	}

	// The default group is at its cap; f4 must wait.
	select {
	case call := <-client.started:
		t.Fatalf("unexpected admission of %s", call.filename)
	case <-time.After(200 * time.Millisecond):
	}

	running[`s\f1`].proceed <- nil
	next := nextCall(t, client)
	if next.filename != `s\f4` {
		t.Fatalf("freed default slot admitted %s", next.filename)
	}
	next.proceed <- nil
	running[`s\f2`].proceed <- nil
	running[`s\f3`].proceed <- nil
}

func TestCancelQueuedTransfer(t *testing.T) {
	client := newFakeClient()
	e, st, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	ctx := context.Background()
	if _, err := e.EnqueueDownload(ctx, "alice", `a\hold.mp3`, 1); err != nil {
		t.Fatal(err)
	}
	hold := nextCall(t, client)

	queued, err := e.EnqueueDownload(ctx, "bob", `b\waiting.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Cancel(ctx, Download, "bob", queued.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	tr := waitForState(t, e, Download, "bob", queued.ID, StateCompletedCancelled)
	if tr.EndedAt == nil {
		t.Error("cancelled transfer has no end time")
	}
	if st.state(queued.ID.String()) != "completed_cancelled" {
		t.Errorf("persisted state = %s", st.state(queued.ID.String()))
	}
	hold.proceed <- nil
}

func TestCancelActiveFreesSlotForNextTransfer(t *testing.T) {
	client := newFakeClient()
	e, _, bus := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	sub := bus.Subscribe(events.EventTransferStateChanged)
	defer bus.Unsubscribe(sub, events.EventTransferStateChanged)

	ctx := context.Background()
	active, err := e.EnqueueDownload(ctx, "alice", `a\active.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	nextCall(t, client)

	waiting, err := e.EnqueueDownload(ctx, "bob", `b\next.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Cancel(ctx, Download, "alice", active.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForState(t, e, Download, "alice", active.ID, StateCompletedCancelled)

	// The freed slot admits the queued transfer.
	next := nextCall(t, client)
	if next.username != "bob" {
		t.Fatalf("freed slot admitted %q", next.username)
	}
	next.proceed <- nil
	waitForState(t, e, Download, "bob", waiting.ID, StateCompletedSucceeded)

	// The cancelled transfer's terminal event carries no failure.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			te, ok := ev.(events.TransferEvent)
			if !ok || te.TransferID != active.ID.String() || te.State != "completed_cancelled" {
				continue
			}
			if te.Failure != "" {
				t.Errorf("cancelled transfer carries failure %q", te.Failure)
			}
			return
		case <-deadline:
			t.Fatal("no terminal event observed for the cancelled transfer")
		}
	}
}

func TestRemoveDeletesTerminalTransfer(t *testing.T) {
	client := newFakeClient()
	e, st, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	ctx := context.Background()
	tr, err := e.EnqueueDownload(ctx, "alice", `a\x.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	nextCall(t, client).proceed <- nil
	waitForState(t, e, Download, "alice", tr.ID, StateCompletedSucceeded)

	if err := e.Remove(ctx, Download, "alice", tr.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.Get(Download, "alice", tr.ID); !seekerr.IsNotFound(err) {
		t.Errorf("Get after remove = %v, want NotFound", err)
	}
	if _, err := st.Get(ctx, tr.ID.String()); !seekerr.IsNotFound(err) {
		t.Errorf("row survives remove: %v", err)
	}
}

func TestUploadLifecycle(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(local, []byte("tune bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	contents := &fakeContents{files: map[string]shares.Resolution{
		`[music]\song.mp3`: {LocalPath: local, Path: `[music]\song.mp3`, Size: 10},
	}}

	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), contents)

	if err := e.EnqueueUpload(context.Background(), "bob", `[music]\song.mp3`); err != nil {
		t.Fatalf("enqueue upload: %v", err)
	}

	call := nextCall(t, client)
	if call.body != "tune bytes" {
		t.Errorf("uploaded body = %q", call.body)
	}
	call.proceed <- nil

	uploads := e.List(Upload)
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d", len(uploads))
	}
	waitForState(t, e, Upload, "bob", uploads[0].ID, StateCompletedSucceeded)
}

func TestUploadFromBlacklistedUserRejected(t *testing.T) {
	fg := &fakeGroups{
		table: []groups.Group{
			{Name: groups.Blacklisted, Priority: 1},
			{Name: groups.Default, Priority: 100},
		},
		member: map[string]string{"mallory": groups.Blacklisted},
	}
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, fg, nil)

	err := e.EnqueueUpload(context.Background(), "mallory", `a\b.mp3`)
	if !seekerr.Is(err, seekerr.KindBlacklisted) {
		t.Fatalf("enqueue = %v, want Blacklisted", err)
	}

	uploads := e.List(Upload)
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want the rejected record", len(uploads))
	}
	if uploads[0].State != StateCompletedRejected {
		t.Errorf("state = %s, want completed_rejected", uploads[0].State)
	}
	if uploads[0].Failure == nil || uploads[0].Failure.Kind != "Blacklisted" {
		t.Errorf("failure = %+v", uploads[0].Failure)
	}
}

func TestUploadOfUnsharedFileRejected(t *testing.T) {
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	err := e.EnqueueUpload(context.Background(), "bob", `not\shared.mp3`)
	if !seekerr.IsNotFound(err) {
		t.Fatalf("enqueue = %v, want NotFound", err)
	}
	uploads := e.List(Upload)
	if len(uploads) != 1 || uploads[0].State != StateCompletedRejected {
		t.Fatalf("uploads = %+v", uploads)
	}
}

func TestPlaceInQueueLocal(t *testing.T) {
	client := newFakeClient()
	e, _, _ := startEngine(t, testConfig(t, 1, 1), client, defaultGroups(), nil)

	ctx := context.Background()
	if _, err := e.EnqueueDownload(ctx, "alice", `a\hold.mp3`, 1); err != nil {
		t.Fatal(err)
	}
	hold := nextCall(t, client)

	second, err := e.EnqueueDownload(ctx, "alice", `a\second.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	third, err := e.EnqueueDownload(ctx, "alice", `a\third.mp3`, 1)
	if err != nil {
		t.Fatal(err)
	}

	if pos, err := e.PlaceInQueue(ctx, Download, "alice", second.ID); err != nil || pos != 1 {
		t.Errorf("second position = %d, %v", pos, err)
	}
	if pos, err := e.PlaceInQueue(ctx, Download, "alice", third.ID); err != nil || pos != 2 {
		t.Errorf("third position = %d, %v", pos, err)
	}
	hold.proceed <- nil
}

func TestRecoveryRequeuesDownloadsAndFailsUploads(t *testing.T) {
	st := newFakeStore()
	now := time.Now()
	download := store.TransferRecord{
		ID:               uuid.NewString(),
		Direction:        "download",
		Username:         "alice",
		RemoteFilename:   `a\resume.mp3`,
		Size:             100,
		BytesTransferred: 40,
		State:            "in_progress",
		EnqueuedAt:       now.Add(-time.Minute),
	}
	upload := store.TransferRecord{
		ID:             uuid.NewString(),
		Direction:      "upload",
		Username:       "bob",
		RemoteFilename: `b\serving.mp3`,
		State:          "in_progress",
		EnqueuedAt:     now.Add(-time.Minute),
	}
	finished := store.TransferRecord{
		ID:             uuid.NewString(),
		Direction:      "download",
		Username:       "carol",
		RemoteFilename: `c\done.mp3`,
		State:          "completed_succeeded",
		EnqueuedAt:     now.Add(-2 * time.Minute),
	}
	ctx := context.Background()
	for _, rec := range []store.TransferRecord{download, upload, finished} {
		rec := rec
		if err := st.Save(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testConfig(t, 1, 1)
	cfg.ResumeOnStartup = config.ResumeRequeue
	client := newFakeClient()
	bus := events.NewBus(64)
	e := NewEngine(Options{
		Transfers: cfg,
		Client:    client,
		Contents:  &fakeContents{files: map[string]shares.Resolution{}},
		Groups:    defaultGroups(),
		Store:     st,
		Bus:       bus,
	})
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.Close(cctx)
		bus.Close()
	})

	// The interrupted download is requeued and admitted again.
	call := nextCall(t, client)
	if call.username != "alice" {
		t.Fatalf("recovered transfer for %q", call.username)
	}
	call.proceed <- nil

	// The interrupted upload fails with a recorded interruption.
	if got := st.state(upload.ID); got != "completed_errored" {
		t.Errorf("recovered upload state = %s", got)
	}

	// Terminal history is loaded untouched.
	id, _ := uuid.Parse(finished.ID)
	tr, err := e.Get(Download, "carol", id)
	if err != nil {
		t.Fatalf("finished transfer not loaded: %v", err)
	}
	if tr.State != StateCompletedSucceeded {
		t.Errorf("finished transfer state = %s", tr.State)
	}
}
