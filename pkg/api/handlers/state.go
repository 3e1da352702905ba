package handlers

import (
	"net/http"

	"github.com/seekd/seekd/pkg/state"
)

// StateHandler exposes the daemon runtime snapshot.
type StateHandler struct {
	states *state.Store
}

// NewStateHandler creates a state handler.
func NewStateHandler(states *state.Store) *StateHandler {
	return &StateHandler{states: states}
}

// StateView is the JSON shape of the full runtime snapshot.
type StateView struct {
	Version VersionView `json:"version"`
	Server  SessionView `json:"server"`
	Scan    ScanView    `json:"scan"`
	Pending PendingView `json:"pending"`
}

// VersionView describes the running build.
type VersionView struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// ScanView describes shared-file index fill progress.
type ScanView struct {
	Filling      bool    `json:"filling"`
	FillProgress float64 `json:"fill_progress"`
	Directories  int     `json:"directories"`
	Files        int     `json:"files"`
	Faulted      bool    `json:"faulted"`
}

// PendingView marks operator actions required by configuration changes.
type PendingView struct {
	Restart     bool `json:"restart"`
	Reconnect   bool `json:"reconnect"`
	ShareRescan bool `json:"share_rescan"`
}

// Get handles GET /api/v1/state.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.states.Current()
	writeJSON(w, http.StatusOK, okResponse(StateView{
		Version: VersionView{Version: snap.Version.Version, Commit: snap.Version.Commit},
		Server:  sessionView(snap.Server),
		Scan: ScanView{
			Filling:      snap.Scan.Filling,
			FillProgress: snap.Scan.FillProgress,
			Directories:  snap.Scan.Directories,
			Files:        snap.Scan.Files,
			Faulted:      snap.Scan.Faulted,
		},
		Pending: PendingView{
			Restart:     snap.Pending.Restart,
			Reconnect:   snap.Pending.Reconnect,
			ShareRescan: snap.Pending.ShareRescan,
		},
	}))
}
