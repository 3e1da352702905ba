// Package health provides shared types for health check responses.
package health

// Response represents the daemon liveness response structure.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service string `json:"service"`
		Version string `json:"version"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// ReadinessResponse represents the readiness probe payload.
type ReadinessResponse struct {
	Status string `json:"status"`
	Data   struct {
		ServerState string `json:"server_state"`
		LoggedIn    bool   `json:"logged_in"`
		ScanFilling bool   `json:"scan_filling"`
	} `json:"data"`
}
