package handlers

import (
	"net/http"

	"github.com/seekd/seekd/pkg/state"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	states  *state.Store
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(states *state.Store, version string) *HealthHandler {
	return &HealthHandler{states: states, version: version}
}

// Liveness handles GET /healthz. Succeeds whenever the process serves.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]string{
		"service": "seekd",
		"version": h.version,
	}))
}

// Readiness handles GET /readyz. The daemon is ready once its
// runtime state is being maintained; overlay connectivity is reported but
// does not gate readiness, since the daemon is useful while reconnecting.
func (h *HealthHandler) Readiness(w http.ResponseWriter, _ *http.Request) {
	snap := h.states.Current()
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"server_state": snap.Server.State,
		"logged_in":    snap.Server.LoggedIn,
		"scan_filling": snap.Scan.Filling,
	}))
}
