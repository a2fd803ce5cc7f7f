package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes the payload as-is. The chat endpoints return flat payloads so
// the frontend reads status and error_kind off the top level.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// OK sends a 200 response with the payload.
func OK(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Error sends a minimal error payload with the given status.
func Error(w http.ResponseWriter, status int, errorKind, message string) {
	JSON(w, status, map[string]string{
		"status":     "error",
		"error_kind": errorKind,
		"message":    message,
	})
}
