package server

import (
	"encoding/json"
	"net/http"

	"github.com/nvoss/lagmark/internal/logging"
)

// respondJSON writes v as the response body with the given status code.
// Encoding failures are logged but not surfaced to the client since the
// header has already been written.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	OK              bool     `json:"ok"`
	Error           string   `json:"error"`
	Errors          []string `json:"errors,omitempty"`
	ServerTimestamp int64    `json:"serverTimestamp,omitempty"`
}

func respondError(w http.ResponseWriter, status int, msg string, reasons []string, serverTs int64) {
	respondJSON(w, status, errorResponse{
		OK:              false,
		Error:           msg,
		Errors:          reasons,
		ServerTimestamp: serverTs,
	})
}
