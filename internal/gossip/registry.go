// Package gossip implements best-effort block propagation between nodes:
// peer registration, push broadcast, receipt validation, and longest-chain
// synchronization.
package gossip

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
)

// Registry is the process-scoped set of known peers. Registration is an
// idempotent insert keyed by normalized address; the set lives from process
// start to process stop and is owned by whichever node instance it is
// injected into.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]domain.Peer
	self  string
}

// NewRegistry creates an empty peer Registry. self is this node's own
// advertised address; attempts to register it are ignored.
func NewRegistry(self string) *Registry {
	return &Registry{
		peers: make(map[string]domain.Peer),
		self:  normalizeAddress(self),
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimSuffix(addr, "/")
	return addr
}

// Register inserts a peer address. Duplicate and self registrations are
// no-ops. It reports whether the address was newly added.
func (r *Registry) Register(address string) bool {
	addr := normalizeAddress(address)
	if addr == "" || addr == r.self {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[addr]; ok {
		return false
	}
	r.peers[addr] = domain.Peer{
		Address:      addr,
		RegisteredAt: time.Now().UTC(),
	}
	return true
}

// List returns all registered peers sorted by address.
func (r *Registry) List() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Addresses returns just the peer addresses, sorted.
func (r *Registry) Addresses() []string {
	peers := r.List()
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.Address
	}
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
