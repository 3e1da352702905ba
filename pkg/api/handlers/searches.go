package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seekd/seekd/pkg/overlay"
	"github.com/seekd/seekd/pkg/store"
)

// SearchManager is the slice of the search manager the API needs.
type SearchManager interface {
	Begin(ctx context.Context, text string, scope overlay.Scope, opts overlay.SearchOptions) (*store.SearchRecord, error)
	Cancel(id string) bool
	Get(ctx context.Context, id string) (*store.SearchRecord, error)
	List(ctx context.Context, limit int) ([]store.SearchRecord, error)
	Delete(ctx context.Context, id string) error
}

// SearchesHandler exposes overlay searches.
type SearchesHandler struct {
	manager SearchManager
}

// NewSearchesHandler creates a searches handler.
func NewSearchesHandler(manager SearchManager) *SearchesHandler {
	return &SearchesHandler{manager: manager}
}

// SearchSummary is the JSON shape of a search without its responses.
type SearchSummary struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	State         string     `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	ResponseCount int        `json:"response_count"`
	FileCount     int        `json:"file_count"`
}

// SearchDetail is the JSON shape of a search with its responses.
type SearchDetail struct {
	SearchSummary
	Responses []SearchResponseView `json:"responses"`
}

// SearchResponseView is the JSON shape of one peer response.
type SearchResponseView struct {
	Username    string           `json:"username"`
	HasFreeSlot bool             `json:"has_free_slot"`
	QueueLength int              `json:"queue_length"`
	UploadSpeed int              `json:"upload_speed"`
	ReceivedAt  time.Time        `json:"received_at"`
	Files       []SearchFileView `json:"files"`
}

// SearchFileView is the JSON shape of one file inside a peer response.
type SearchFileView struct {
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	Extension       string `json:"extension,omitempty"`
	BitRate         int    `json:"bit_rate,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	DurationSecs    int    `json:"duration_secs,omitempty"`
	VariableBitRate bool   `json:"variable_bit_rate,omitempty"`
}

func searchSummary(rec store.SearchRecord) SearchSummary {
	return SearchSummary{
		ID:            rec.ID,
		Text:          rec.Text,
		State:         rec.State,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
		ResponseCount: rec.ResponseCount,
		FileCount:     rec.FileCount,
	}
}

func searchDetail(rec *store.SearchRecord) SearchDetail {
	detail := SearchDetail{
		SearchSummary: searchSummary(*rec),
		Responses:     make([]SearchResponseView, 0, len(rec.Responses)),
	}
	for _, resp := range rec.Responses {
		view := SearchResponseView{
			Username:    resp.Username,
			HasFreeSlot: resp.HasFreeSlot,
			QueueLength: resp.QueueLength,
			UploadSpeed: resp.UploadSpeed,
			ReceivedAt:  resp.ReceivedAt,
			Files:       make([]SearchFileView, 0, len(resp.Files)),
		}
		for _, f := range resp.Files {
			view.Files = append(view.Files, SearchFileView{
				Name:            f.Name,
				Size:            f.Size,
				Extension:       f.Extension,
				BitRate:         f.BitRate,
				SampleRate:      f.SampleRate,
				DurationSecs:    f.DurationSecs,
				VariableBitRate: f.VariableBitRate,
			})
		}
		detail.Responses = append(detail.Responses, view)
	}
	return detail
}

// BeginSearchRequest is the body for POST /api/v1/searches.
type BeginSearchRequest struct {
	Text     string `json:"text"`
	Scope    string `json:"scope,omitempty"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

func parseScope(s string) (overlay.Scope, bool) {
	switch s {
	case "", "network":
		return overlay.ScopeNetwork, true
	case "room":
		return overlay.ScopeRoom, true
	case "user":
		return overlay.ScopeUser, true
	default:
		return 0, false
	}
}

// Begin handles POST /api/v1/searches.
func (h *SearchesHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req BeginSearchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	scope, ok := parseScope(req.Scope)
	if !ok {
		badRequest(w, "scope must be network, room or user")
		return
	}
	opts := overlay.SearchOptions{Room: req.Room, Username: req.Username}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			badRequest(w, "malformed timeout duration")
			return
		}
		opts.Timeout = d
	}

	rec, err := h.manager.Begin(r.Context(), req.Text, scope, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(searchSummary(*rec)))
}

// List handles GET /api/v1/searches.
func (h *SearchesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.manager.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]SearchSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, searchSummary(rec))
	}
	writeJSON(w, http.StatusOK, okResponse(summaries))
}

// Get handles GET /api/v1/searches/{id}.
func (h *SearchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(searchDetail(rec)))
}

// Cancel handles POST /api/v1/searches/{id}/cancel.
func (h *SearchesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	stopped := h.manager.Cancel(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusAccepted, okResponse(map[string]bool{"cancelled": stopped}))
}

// Delete handles DELETE /api/v1/searches/{id}.
func (h *SearchesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]bool{"deleted": true}))
}
