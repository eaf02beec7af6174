package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/gossip"
)

// PeerService defines the gossip-facing methods the peer handler requires.
type PeerService interface {
	RegisterPeer(ctx context.Context, address string) bool
	ReceiveBlock(ctx context.Context, b domain.Block) gossip.ReceiveResult
	Peers() []domain.Peer
}

// PeerHandler serves the gossip mesh endpoints. These routes are also hit by
// other nodes, not just operators, so they stay outside API-key auth.
type PeerHandler struct {
	peers  PeerService
	logger *slog.Logger
}

// NewPeerHandler creates a PeerHandler.
func NewPeerHandler(peers PeerService, logger *slog.Logger) *PeerHandler {
	return &PeerHandler{peers: peers, logger: logger}
}

// registerRequest is the body another node posts to join the mesh.
type registerRequest struct {
	Address string `json:"address"`
}

// Register adds a peer address to the registry. Duplicate registrations are
// acknowledged without effect.
// POST /api/peers/register
func (h *PeerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid register payload")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "missing peer address")
		return
	}

	added := h.peers.RegisterPeer(r.Context(), req.Address)
	writeJSON(w, http.StatusOK, map[string]any{
		"registered": added,
		"peers":      len(h.peers.Peers()),
	})
}

// Receive accepts a block pushed by a peer. The response body always carries
// the receive verdict; only structurally broken payloads get a non-2xx
// status, so a best-effort sender can treat 2xx as delivered.
// POST /api/peers/receive
func (h *PeerHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var block domain.Block
	if err := decodeJSON(r, &block); err != nil {
		writeError(w, http.StatusBadRequest, "invalid block payload")
		return
	}

	result := h.peers.ReceiveBlock(r.Context(), block)

	status := http.StatusOK
	switch result.Status {
	case domain.BlockStatusTampered, domain.BlockStatusUnverified:
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, result)
}

// List returns all registered peers.
// GET /api/peers
func (h *PeerHandler) List(w http.ResponseWriter, r *http.Request) {
	peers := h.peers.Peers()
	writeJSON(w, http.StatusOK, map[string]any{
		"peers": peers,
		"count": len(peers),
	})
}
