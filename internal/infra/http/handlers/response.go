package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/usecase"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// writeError maps the error taxonomy onto HTTP statuses. Internal errors are
// logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verrs usecase.ValidationErrors
	var terr *entity.TransitionError

	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, Response{Error: "Validation failed", Details: verrs})
	case errors.Is(err, entity.ErrValidation):
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
	case errors.Is(err, entity.ErrLeadNotFound):
		writeJSON(w, http.StatusNotFound, Response{Error: "Lead not found"})
	case errors.Is(err, entity.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Response{Error: "Not found"})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, Response{Error: terr.Error()})
	case errors.Is(err, entity.ErrQueueUnavailable):
		logger.Error("queue unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: "Queue unavailable, try again later"})
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: "Internal server error"})
	}
}

// decodeJSON rejects bodies that are not a single JSON object of the expected shape.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return usecase.ValidationErrors{{Field: "body", Message: "invalid JSON: " + err.Error()}}
	}
	return nil
}

const maxBodyBytes = 1 << 20
