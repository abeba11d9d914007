// Package handlers provides shared HTTP response helpers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondJSON writes v as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError logs the error and writes it as a JSON error response.
// Internal errors are logged at error level and masked; client errors
// pass their message through.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	body := ErrorBody{Error: err.Error()}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
		body.Error = http.StatusText(status)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	RespondJSON(w, status, body)
}
