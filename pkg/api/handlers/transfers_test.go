package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seekd/seekd/pkg/seekerr"
	"github.com/seekd/seekd/pkg/transfers"
)

type fakeEngine struct {
	transfers []transfers.Transfer

	cancelled struct {
		id     uuid.UUID
		remove bool
	}
	enqueueErr error
}

func (f *fakeEngine) List(direction transfers.Direction) []transfers.Transfer {
	var out []transfers.Transfer
	for _, t := range f.transfers {
		if t.Direction == direction {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeEngine) Get(direction transfers.Direction, username string, id uuid.UUID) (transfers.Transfer, error) {
	for _, t := range f.transfers {
		if t.Direction == direction && t.Username == username && t.ID == id {
			return t, nil
		}
	}
	return transfers.Transfer{}, seekerr.New(seekerr.KindNotFound, "transfer not found")
}

func (f *fakeEngine) EnqueueDownload(_ context.Context, username, remoteFilename string, size int64) (transfers.Transfer, error) {
	if f.enqueueErr != nil {
		return transfers.Transfer{}, f.enqueueErr
	}
	t := transfers.Transfer{
		ID:             uuid.New(),
		Direction:      transfers.Download,
		Username:       username,
		RemoteFilename: remoteFilename,
		Size:           size,
		EnqueuedAt:     time.Now().UTC(),
	}
	f.transfers = append(f.transfers, t)
	return t, nil
}

func (f *fakeEngine) Cancel(_ context.Context, _ transfers.Direction, _ string, id uuid.UUID, remove bool) error {
	f.cancelled.id = id
	f.cancelled.remove = remove
	return nil
}

func (f *fakeEngine) PlaceInQueue(_ context.Context, _ transfers.Direction, _ string, _ uuid.UUID) (int, error) {
	return 7, nil
}

func transfersRouter(engine TransferEngine) http.Handler {
	h := NewTransfersHandler(engine)
	r := chi.NewRouter()
	r.Post("/transfers/downloads", h.Enqueue)
	r.Get("/transfers/{direction}", h.List)
	r.Get("/transfers/{direction}/{username}/{id}", h.Get)
	r.Delete("/transfers/{direction}/{username}/{id}", h.Cancel)
	r.Get("/transfers/{direction}/{username}/{id}/position", h.Position)
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestEnqueueDownload(t *testing.T) {
	engine := &fakeEngine{}
	router := transfersRouter(engine)

	req := httptest.NewRequest(http.MethodPost, "/transfers/downloads",
		strings.NewReader(`{"username":"alice","filename":"music\\song.flac","size":1024}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	data := body["data"].(map[string]any)
	if data["username"] != "alice" {
		t.Errorf("username = %v, want alice", data["username"])
	}
	if data["direction"] != "download" {
		t.Errorf("direction = %v, want download", data["direction"])
	}
	if data["state"] != "requested" {
		t.Errorf("state = %v, want requested", data["state"])
	}
}

func TestEnqueueRejectsMissingFields(t *testing.T) {
	router := transfersRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/transfers/downloads",
		strings.NewReader(`{"username":"alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestEnqueueMapsBlacklistedTo403(t *testing.T) {
	engine := &fakeEngine{enqueueErr: seekerr.New(seekerr.KindBlacklisted, "peer is blacklisted")}
	router := transfersRouter(engine)

	req := httptest.NewRequest(http.MethodPost, "/transfers/downloads",
		strings.NewReader(`{"username":"mallory","filename":"x","size":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestListFiltersByDirection(t *testing.T) {
	engine := &fakeEngine{transfers: []transfers.Transfer{
		{ID: uuid.New(), Direction: transfers.Download, Username: "alice"},
		{ID: uuid.New(), Direction: transfers.Upload, Username: "bob"},
	}}
	router := transfersRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/transfers/uploads", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeResponse(t, rec)
	list := body["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(list))
	}
	if list[0].(map[string]any)["username"] != "bob" {
		t.Errorf("username = %v, want bob", list[0].(map[string]any)["username"])
	}
}

func TestListRejectsUnknownDirection(t *testing.T) {
	router := transfersRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/transfers/sideways", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetUnknownTransferIs404(t *testing.T) {
	router := transfersRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/transfers/downloads/alice/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	router := transfersRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/transfers/downloads/alice/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCancelPassesRemoveFlag(t *testing.T) {
	engine := &fakeEngine{}
	router := transfersRouter(engine)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodDelete, "/transfers/downloads/alice/"+id.String()+"?remove=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if engine.cancelled.id != id {
		t.Errorf("cancelled id = %s, want %s", engine.cancelled.id, id)
	}
	if !engine.cancelled.remove {
		t.Error("remove flag not passed to engine")
	}
}

func TestPositionReturnsQueuePlace(t *testing.T) {
	router := transfersRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/transfers/downloads/alice/"+uuid.NewString()+"/position", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeResponse(t, rec)
	pos := body["data"].(map[string]any)["position"].(float64)
	if pos != 7 {
		t.Errorf("position = %v, want 7", pos)
	}
}

func TestFailureDetailSerialized(t *testing.T) {
	id := uuid.New()
	engine := &fakeEngine{transfers: []transfers.Transfer{{
		ID:        id,
		Direction: transfers.Download,
		Username:  "alice",
		State:     transfers.StateCompletedErrored,
		Failure:   &transfers.FailureDetail{Kind: "PeerRejected", Message: "file not shared"},
	}}}
	router := transfersRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/transfers/downloads/alice/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeResponse(t, rec)
	failure := body["data"].(map[string]any)["failure"].(map[string]any)
	if failure["kind"] != "PeerRejected" {
		t.Errorf("failure kind = %v, want PeerRejected", failure["kind"])
	}
}
