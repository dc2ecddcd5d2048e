package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps service errors onto status codes. Unexpected errors
// are logged and reported as a bare 500 with fallback as the message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	var inputErr *services.InputError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Message)
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, "username taken")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	default:
		logging.FromContext(ctx).Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
