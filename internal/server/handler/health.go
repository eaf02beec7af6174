package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ChainLength reports the local chain height for the health payload.
type ChainLength interface {
	Length(ctx context.Context) (int64, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	chain  ChainLength
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(chain ChainLength, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{chain: chain, logger: logger}
}

// HealthCheck responds with the node status and current chain height.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.chain != nil {
		if length, err := h.chain.Length(r.Context()); err == nil {
			payload["chainLength"] = length
		} else {
			payload["status"] = "degraded"
			h.logger.WarnContext(r.Context(), "handler: chain length probe failed",
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, payload)
}
