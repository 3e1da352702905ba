package handlers

import (
	"context"
	"net/http"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/shares"
	"github.com/seekd/seekd/pkg/state"
)

// SharesIndex is the slice of the shared-file index the API needs.
type SharesIndex interface {
	Counts() (directories, files int)
	Refill(ctx context.Context) error
	Browse(ctx context.Context) []shares.Directory
	List(ctx context.Context, directoryPath string) (shares.Directory, error)
}

// SharesHandler exposes the shared-file index.
type SharesHandler struct {
	index  SharesIndex
	states *state.Store
}

// NewSharesHandler creates a shares handler.
func NewSharesHandler(index SharesIndex, states *state.Store) *SharesHandler {
	return &SharesHandler{index: index, states: states}
}

// SharesView is the JSON shape of GET /api/v1/shares.
type SharesView struct {
	Directories  int     `json:"directories"`
	Files        int     `json:"files"`
	Filling      bool    `json:"filling"`
	FillProgress float64 `json:"fill_progress"`
	Faulted      bool    `json:"faulted"`
}

// Get handles GET /api/v1/shares.
func (h *SharesHandler) Get(w http.ResponseWriter, r *http.Request) {
	dirs, files := h.index.Counts()
	scan := h.states.Current().Scan
	writeJSON(w, http.StatusOK, okResponse(SharesView{
		Directories:  dirs,
		Files:        files,
		Filling:      scan.Filling,
		FillProgress: scan.FillProgress,
		Faulted:      scan.Faulted,
	}))
}

// Refill handles PUT /api/v1/shares. The rescan runs in the background;
// progress is visible through GET /api/v1/shares and the state stream.
func (h *SharesHandler) Refill(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.index.Refill(context.Background()); err != nil {
			logger.Warn("share rescan failed", logger.Err(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, okResponse(map[string]string{"status": "rescanning"}))
}

// DirectoryView is the JSON shape of one shared directory.
type DirectoryView struct {
	Path   string     `json:"path"`
	Agent  string     `json:"agent,omitempty"`
	Hidden bool       `json:"hidden"`
	Files  []FileView `json:"files"`
}

// FileView is the JSON shape of one shared file.
type FileView struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension,omitempty"`
}

func directoryView(d shares.Directory) DirectoryView {
	view := DirectoryView{
		Path:   d.Path,
		Agent:  d.Agent,
		Hidden: d.Hidden,
		Files:  make([]FileView, 0, len(d.Files)),
	}
	for _, f := range d.Files {
		view.Files = append(view.Files, FileView{Name: f.Name, Size: f.Size, Extension: f.Extension})
	}
	return view
}

// Contents handles GET /api/v1/shares/contents. With ?path= it returns a
// single directory, otherwise the full listing.
func (h *SharesHandler) Contents(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		dir, err := h.index.List(r.Context(), path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse(directoryView(dir)))
		return
	}

	dirs := h.index.Browse(r.Context())
	views := make([]DirectoryView, 0, len(dirs))
	for _, d := range dirs {
		views = append(views, directoryView(d))
	}
	writeJSON(w, http.StatusOK, okResponse(views))
}
