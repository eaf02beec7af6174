package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kitchain/kitchain/internal/domain"
)

// AuditService defines the integrity and audit-trail methods the handler
// requires.
type AuditService interface {
	VerifyChain(ctx context.Context) (bool, error)
	TamperScan(ctx context.Context) ([]domain.TamperReport, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// Snapshotter archives the chain to object storage on demand. Optional; nil
// disables the snapshot endpoints.
type Snapshotter interface {
	SnapshotChain(ctx context.Context) (string, int64, error)
	ListSnapshots(ctx context.Context) ([]domain.BlobInfo, error)
}

// AuditHandler serves integrity-check and audit-trail endpoints.
type AuditHandler struct {
	audit    AuditService
	archiver Snapshotter
	logger   *slog.Logger
}

// NewAuditHandler creates an AuditHandler. archiver may be nil when no
// object storage is configured.
func NewAuditHandler(audit AuditService, archiver Snapshotter, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, archiver: archiver, logger: logger}
}

// Verify reports whether the full local chain passes integrity checks.
// GET /api/chain/verify
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	valid, err := h.audit.VerifyChain(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: verify failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to verify chain")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

// TamperScan returns one report per compromised block, or an empty set when
// the chain is intact.
// GET /api/chain/tamper
func (h *AuditHandler) TamperScan(w http.ResponseWriter, r *http.Request) {
	reports, err := h.audit.TamperScan(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: tamper scan failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to scan chain")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tampered": len(reports) > 0,
		"reports":  reports,
	})
}

// Events returns the newest audit log entries.
// GET /api/audit/events?limit=50
func (h *AuditHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	entries, err := h.audit.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": entries,
		"count":  len(entries),
	})
}

// Snapshot archives the full chain to object storage.
// POST /api/chain/snapshot
func (h *AuditHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusNotImplemented, "object storage is not configured")
		return
	}

	path, count, err := h.archiver.SnapshotChain(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to snapshot chain")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"path":   path,
		"blocks": count,
	})
}

// Snapshots lists the chain snapshots present in object storage.
// GET /api/chain/snapshots
func (h *AuditHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusNotImplemented, "object storage is not configured")
		return
	}

	snapshots, err := h.archiver.ListSnapshots(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list snapshots failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}
