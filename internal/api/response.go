// Package api provides the admin HTTP surface: health, metrics, read-only
// views over appointments and chat logs, and a manual send endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gadgetcare/repairbot/internal/models"
)

// canned 500 body, marshaled once at startup so the error path of
// writeJSON never depends on encoding succeeding.
var internalErrorBody []byte

func init() {
	b, err := json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("api: cannot marshal canned error response: %v", err))
	}
	internalErrorBody = b
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("API response marshal failed", "error", err)
		body, status = internalErrorBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("API response write failed", "error", err)
	}
}
