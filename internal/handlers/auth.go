package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/services"
)

// AuthHandler provides registration and login endpoints.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAuthHandler(authService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err, "register failed")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err, "login failed")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, result)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.authService.Me(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeServiceError(r.Context(), w, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// CredentialsRequest is the body of both register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
