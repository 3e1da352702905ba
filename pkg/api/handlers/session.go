package handlers

import (
	"net/http"

	"github.com/seekd/seekd/pkg/state"
)

// SessionController is the slice of the session controller the API needs.
type SessionController interface {
	Connect()
	Disconnect() error
	Reconnect()
}

// SessionHandler exposes overlay session control.
type SessionHandler struct {
	controller SessionController
	states     *state.Store
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(controller SessionController, states *state.Store) *SessionHandler {
	return &SessionHandler{controller: controller, states: states}
}

// SessionView is the JSON shape of the overlay session state.
type SessionView struct {
	State     string `json:"state"`
	Server    string `json:"server"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
}

func sessionView(server state.ServerState) SessionView {
	return SessionView{
		State:     server.State,
		Server:    server.Address,
		Username:  server.Username,
		Connected: server.Connected,
		LoggedIn:  server.LoggedIn,
	}
}

// Get handles GET /api/v1/session.
func (h *SessionHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(sessionView(h.states.Current().Server)))
}

// UpdateRequest is the body for PUT /api/v1/session.
type UpdateRequest struct {
	Action string `json:"action"`
}

// Update handles PUT /api/v1/session with actions connect, disconnect,
// and reconnect.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	switch req.Action {
	case "connect":
		h.controller.Connect()
	case "disconnect":
		if err := h.controller.Disconnect(); err != nil {
			writeError(w, err)
			return
		}
	case "reconnect":
		h.controller.Reconnect()
	default:
		badRequest(w, "action must be connect, disconnect, or reconnect")
		return
	}

	writeJSON(w, http.StatusAccepted, okResponse(sessionView(h.states.Current().Server)))
}
