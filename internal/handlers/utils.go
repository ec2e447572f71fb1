package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/akolanti/docsync/internal/adapter"
	"github.com/akolanti/docsync/pkg/logger_i"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are gone, only logging is left
		logger_i.NewLogger("ResponseWriter").Error("Error encoding response", "error", err)
	}
}

func (h *Handler) validateContext(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		h.logger.WithTrace(ctx).Warn("context error", "error", err)
		return false
	}
	return true
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, error string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, error, httpCode))
}
