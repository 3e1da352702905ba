// Package handlers implements the operator REST API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/seekd/seekd/pkg/seekerr"
)

// response is the standard API response wrapper.
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func okResponse(data any) response {
	return response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errorResponse(errMsg string) response {
	return response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError maps an error through the shared taxonomy to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse(err.Error()))
}

func statusFor(err error) int {
	switch seekerr.KindOf(err) {
	case seekerr.KindNotFound:
		return http.StatusNotFound
	case seekerr.KindAlreadyExists, seekerr.KindPreconditionFailed:
		return http.StatusConflict
	case seekerr.KindInvalidArgument:
		return http.StatusBadRequest
	case seekerr.KindUnauthorized:
		return http.StatusUnauthorized
	case seekerr.KindBlacklisted:
		return http.StatusForbidden
	case seekerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// badRequest writes a 400 with the given message.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse(msg))
}

// unauthorized writes a 401 with the given message.
func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse(msg))
}

// decodeJSONBody decodes a JSON request body into v. On failure a 400 is
// written and false returned.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}
