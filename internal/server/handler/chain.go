package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kitchain/kitchain/internal/domain"
)

// ChainService defines the methods the chain handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ChainService interface {
	AppendRecord(ctx context.Context, record domain.CustodyRecord) (domain.Block, error)
	GetChain(ctx context.Context) ([]domain.Block, error)
	GetLatest(ctx context.Context) (domain.Block, error)
	GetHistory(ctx context.Context, subjectID string) ([]domain.Block, error)
	RollbackLatest(ctx context.Context) (domain.Block, error)
}

// ChainHandler serves chain-related HTTP endpoints.
type ChainHandler struct {
	chain  ChainService
	logger *slog.Logger
}

// NewChainHandler creates a ChainHandler.
func NewChainHandler(chain ChainService, logger *slog.Logger) *ChainHandler {
	return &ChainHandler{chain: chain, logger: logger}
}

// chainResponse wraps the full-chain endpoint output. Peer nodes decode the
// same shape during sync, so the field names are part of the wire contract.
type chainResponse struct {
	Chain  []domain.Block `json:"chain"`
	Length int            `json:"length"`
}

// AppendRecord appends a custody record to the chain.
// POST /api/chain/records
func (h *ChainHandler) AppendRecord(w http.ResponseWriter, r *http.Request) {
	var record domain.CustodyRecord
	if err := decodeJSON(r, &record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid record payload")
		return
	}

	block, err := h.chain.AppendRecord(r.Context(), record)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrSigningFailed) {
			writeError(w, http.StatusForbidden, "record signature rejected")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: append record failed",
			slog.String("subject", record.SubjectID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to append record")
		return
	}

	writeJSON(w, http.StatusCreated, block)
}

// GetChain returns the full local chain.
// GET /api/chain
func (h *ChainHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.chain.GetChain(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get chain failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load chain")
		return
	}

	writeJSON(w, http.StatusOK, chainResponse{
		Chain:  blocks,
		Length: len(blocks),
	})
}

// GetLatest returns the most recent block.
// GET /api/chain/latest
func (h *ChainHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	block, err := h.chain.GetLatest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chain is empty")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get latest failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load latest block")
		return
	}

	writeJSON(w, http.StatusOK, block)
}

// GetHistory returns every block concerning a subject, in chain order.
// GET /api/chain/history/{subjectId}
func (h *ChainHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	subjectID := pathParam(r, "subjectId")
	if subjectID == "" {
		writeError(w, http.StatusBadRequest, "missing subject id")
		return
	}

	blocks, err := h.chain.GetHistory(r.Context(), subjectID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get history failed",
			slog.String("subject", subjectID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subjectId": subjectID,
		"blocks":    blocks,
	})
}

// Rollback removes the newest non-genesis block. Maintenance endpoint.
// POST /api/chain/rollback
func (h *ChainHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	removed, err := h.chain.RollbackLatest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusConflict, "nothing to roll back")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: rollback failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to roll back")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
	})
}
