package handlers

import (
	"net/http"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/api/auth"
)

// AuthHandler issues and refreshes operator session tokens.
type AuthHandler struct {
	users *auth.Users
	jwt   *auth.JWTService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users *auth.Users, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(w, "username and password are required")
		return
	}

	if err := h.users.Validate(req.Username, req.Password); err != nil {
		logger.Warn("operator login refused",
			logger.Username(req.Username), logger.RemoteAddr(r.RemoteAddr))
		unauthorized(w, "invalid username or password")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(req.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to generate tokens"))
		return
	}

	logger.Info("operator logged in", logger.Username(req.Username))
	writeJSON(w, http.StatusOK, okResponse(pair))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		unauthorized(w, "invalid or expired refresh token")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(claims.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to generate tokens"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(pair))
}
