package handlers

import (
	"net/http"

	"github.com/seekd/seekd/pkg/agents"
)

// AgentRegistry is the slice of the agent fabric the API needs.
type AgentRegistry interface {
	Agents() []agents.AgentInfo
}

// AgentsHandler exposes the connected-agent roster.
type AgentsHandler struct {
	fabric AgentRegistry
}

// NewAgentsHandler creates an agents handler.
func NewAgentsHandler(fabric AgentRegistry) *AgentsHandler {
	return &AgentsHandler{fabric: fabric}
}

// List handles GET /api/v1/agents.
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.fabric.Agents()))
}
