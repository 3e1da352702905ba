package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seekd/seekd/pkg/transfers"
)

// TransferEngine is the slice of the transfer engine the API needs.
type TransferEngine interface {
	List(direction transfers.Direction) []transfers.Transfer
	Get(direction transfers.Direction, username string, id uuid.UUID) (transfers.Transfer, error)
	EnqueueDownload(ctx context.Context, username, remoteFilename string, size int64) (transfers.Transfer, error)
	Cancel(ctx context.Context, direction transfers.Direction, username string, id uuid.UUID, remove bool) error
	PlaceInQueue(ctx context.Context, direction transfers.Direction, username string, id uuid.UUID) (int, error)
}

// TransfersHandler exposes the transfer engine.
type TransfersHandler struct {
	engine TransferEngine
}

// NewTransfersHandler creates a transfers handler.
func NewTransfersHandler(engine TransferEngine) *TransfersHandler {
	return &TransfersHandler{engine: engine}
}

// TransferView is the JSON shape of one transfer.
type TransferView struct {
	ID               string     `json:"id"`
	Direction        string     `json:"direction"`
	Username         string     `json:"username"`
	RemoteFilename   string     `json:"remote_filename"`
	LocalFilename    string     `json:"local_filename,omitempty"`
	Size             int64      `json:"size"`
	StartOffset      int64      `json:"start_offset"`
	BytesTransferred int64      `json:"bytes_transferred"`
	AverageSpeed     float64    `json:"average_speed"`
	State            string     `json:"state"`
	EnqueuedAt       time.Time  `json:"enqueued_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Failure          *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"failure,omitempty"`
}

func transferView(t transfers.Transfer) TransferView {
	view := TransferView{
		ID:               t.ID.String(),
		Direction:        t.Direction.String(),
		Username:         t.Username,
		RemoteFilename:   t.RemoteFilename,
		LocalFilename:    t.LocalFilename,
		Size:             t.Size,
		StartOffset:      t.StartOffset,
		BytesTransferred: t.BytesTransferred,
		AverageSpeed:     t.AverageSpeed,
		State:            t.State.String(),
		EnqueuedAt:       t.EnqueuedAt,
		StartedAt:        t.StartedAt,
		EndedAt:          t.EndedAt,
	}
	if t.Failure != nil {
		view.Failure = &struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{Kind: t.Failure.Kind, Message: t.Failure.Message}
	}
	return view
}

// parseDirection resolves the {direction} URL segment. Both the collection
// form used in paths and the singular persisted form are accepted.
func parseDirection(w http.ResponseWriter, r *http.Request) (transfers.Direction, bool) {
	raw := chi.URLParam(r, "direction")
	switch raw {
	case "downloads":
		return transfers.Download, true
	case "uploads":
		return transfers.Upload, true
	}
	direction, ok := transfers.ParseDirection(raw)
	if !ok {
		badRequest(w, "direction must be downloads or uploads")
		return 0, false
	}
	return direction, true
}

// parseTransferID resolves the {id} URL segment.
func parseTransferID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "malformed transfer id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /api/v1/transfers/{direction}.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	direction, ok := parseDirection(w, r)
	if !ok {
		return
	}
	list := h.engine.List(direction)
	views := make([]TransferView, 0, len(list))
	for _, t := range list {
		views = append(views, transferView(t))
	}
	writeJSON(w, http.StatusOK, okResponse(views))
}

// Get handles GET /api/v1/transfers/{direction}/{username}/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	direction, ok := parseDirection(w, r)
	if !ok {
		return
	}
	id, ok := parseTransferID(w, r)
	if !ok {
		return
	}
	t, err := h.engine.Get(direction, chi.URLParam(r, "username"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(transferView(t)))
}

// EnqueueRequest is the body for POST /api/v1/transfers/downloads.
type EnqueueRequest struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Enqueue handles POST /api/v1/transfers/downloads.
func (h *TransfersHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Filename == "" {
		badRequest(w, "username and filename are required")
		return
	}

	t, err := h.engine.EnqueueDownload(r.Context(), req.Username, req.Filename, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(transferView(t)))
}

// Cancel handles DELETE /api/v1/transfers/{direction}/{username}/{id}.
// With ?remove=true the transfer is also dropped from history.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	direction, ok := parseDirection(w, r)
	if !ok {
		return
	}
	id, ok := parseTransferID(w, r)
	if !ok {
		return
	}
	remove := r.URL.Query().Get("remove") == "true"

	if err := h.engine.Cancel(r.Context(), direction, chi.URLParam(r, "username"), id, remove); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse(map[string]bool{"removed": remove}))
}

// Position handles GET /api/v1/transfers/{direction}/{username}/{id}/position.
func (h *TransfersHandler) Position(w http.ResponseWriter, r *http.Request) {
	direction, ok := parseDirection(w, r)
	if !ok {
		return
	}
	id, ok := parseTransferID(w, r)
	if !ok {
		return
	}
	pos, err := h.engine.PlaceInQueue(r.Context(), direction, chi.URLParam(r, "username"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]int{"position": pos}))
}
