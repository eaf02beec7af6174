package gossip

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitchain/kitchain/internal/chain"
	"github.com/kitchain/kitchain/internal/domain"
)

// maxConcurrentPushes bounds the broadcast fan-out so a large peer set cannot
// spawn an unbounded number of outbound calls.
const maxConcurrentPushes = 8

// Layer ties the peer registry and peer client to the local chain engine. It
// is best-effort by contract: broadcast failures are logged per peer and never
// surfaced to the operation that committed the block.
type Layer struct {
	engine   *chain.Engine
	registry *Registry
	client   *Client
	logger   *slog.Logger

	pushTimeout time.Duration
}

// NewLayer creates a gossip Layer.
func NewLayer(engine *chain.Engine, registry *Registry, client *Client, pushTimeout time.Duration, logger *slog.Logger) *Layer {
	if pushTimeout <= 0 {
		pushTimeout = 5 * time.Second
	}
	return &Layer{
		engine:      engine,
		registry:    registry,
		client:      client,
		logger:      logger.With(slog.String("component", "gossip")),
		pushTimeout: pushTimeout,
	}
}

// RegisterPeer inserts a peer address; duplicates are no-ops. It reports
// whether the peer was newly added.
func (l *Layer) RegisterPeer(address string) bool {
	added := l.registry.Register(address)
	if added {
		l.logger.Info("peer registered", slog.String("address", address))
	}
	return added
}

// Peers returns the registered peer set.
func (l *Layer) Peers() []domain.Peer {
	return l.registry.List()
}

// Broadcast pushes a committed block to every registered peer. Deliveries run
// concurrently with a bounded fan-out and an individual timeout each; a
// failed peer is logged and skipped, never retried here and never aggregated
// into an error for the caller.
func (l *Layer) Broadcast(ctx context.Context, b domain.Block) {
	peers := l.registry.Addresses()
	if len(peers) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPushes)

	for _, addr := range peers {
		g.Go(func() error {
			pushCtx, cancel := context.WithTimeout(ctx, l.pushTimeout)
			defer cancel()

			if err := l.client.PushBlock(pushCtx, addr, b); err != nil {
				l.logger.WarnContext(ctx, "broadcast delivery failed",
					slog.String("peer", addr),
					slog.Int64("index", b.Index),
					slog.String("error", err.Error()),
				)
			}
			// Always nil: one unreachable peer must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	l.logger.InfoContext(ctx, "block broadcast",
		slog.Int64("index", b.Index),
		slog.Int("peers", len(peers)),
	)
}

// ReceiveResult reports what happened to a block pushed by a peer.
type ReceiveResult struct {
	Accepted bool               `json:"accepted"`
	Status   domain.BlockStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
}

// Receive handles a block pushed by a peer: it recomputes the hash, tags the
// block verified, tampered, or unverified, and delegates storage to the chain
// engine. The returned result says whether the block was durably accepted.
func (l *Layer) Receive(ctx context.Context, b domain.Block) ReceiveResult {
	status := classify(b)
	b.Status = status

	if status != domain.BlockStatusVerified {
		l.logger.WarnContext(ctx, "received block rejected",
			slog.Int64("index", b.Index),
			slog.String("status", string(status)),
		)
		return ReceiveResult{Accepted: false, Status: status, Reason: "block failed verification"}
	}

	accepted, err := l.engine.SaveReceivedBlock(ctx, b)
	if err != nil {
		l.logger.WarnContext(ctx, "received block not stored",
			slog.Int64("index", b.Index),
			slog.String("error", err.Error()),
		)
		return ReceiveResult{Accepted: false, Status: status, Reason: err.Error()}
	}

	return ReceiveResult{Accepted: accepted, Status: status}
}

// classify tags a block based on structural completeness and hash
// correctness.
func classify(b domain.Block) domain.BlockStatus {
	if b.Hash == "" || b.PreviousHash == "" || b.Timestamp.IsZero() || b.Index < 0 {
		return domain.BlockStatusUnverified
	}
	expected, err := chain.ComputeHash(b.Index, b.Timestamp, b.Data, b.PreviousHash)
	if err != nil || expected != b.Hash {
		return domain.BlockStatusTampered
	}
	return domain.BlockStatusVerified
}

// SyncFromPeer fetches the peer's full chain and, when it is both longer than
// the local chain and internally valid, overwrites local state with it.
// Network errors mean "this peer unavailable" and report false.
func (l *Layer) SyncFromPeer(ctx context.Context, address string) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, l.pushTimeout)
	defer cancel()

	candidate, err := l.client.FetchChain(fetchCtx, address)
	if err != nil {
		l.logger.WarnContext(ctx, "sync fetch failed",
			slog.String("peer", address),
			slog.String("error", err.Error()),
		)
		return false
	}

	accepted, err := l.engine.ReplaceChain(ctx, candidate)
	if err != nil {
		l.logger.ErrorContext(ctx, "sync replace failed",
			slog.String("peer", address),
			slog.String("error", err.Error()),
		)
		return false
	}

	if accepted {
		l.logger.InfoContext(ctx, "chain healed from peer",
			slog.String("peer", address),
			slog.Int("length", len(candidate)),
		)
	}
	return accepted
}

// InitializeSync bootstraps against a list of candidate peers on startup:
// each is registered and tried in order, stopping at the first peer whose
// chain is adopted. This is a simple bootstrap strategy, not a quorum read.
func (l *Layer) InitializeSync(ctx context.Context, knownPeers []string) bool {
	for _, addr := range knownPeers {
		l.RegisterPeer(addr)
		if l.SyncFromPeer(ctx, addr) {
			return true
		}
	}
	return false
}

// AnnounceTo self-registers with every known peer so they gossip back to this
// node. Failures are logged per peer.
func (l *Layer) AnnounceTo(ctx context.Context, self string) {
	for _, addr := range l.registry.Addresses() {
		announceCtx, cancel := context.WithTimeout(ctx, l.pushTimeout)
		err := l.client.AnnounceSelf(announceCtx, addr, self)
		cancel()
		if err != nil {
			l.logger.WarnContext(ctx, "self announce failed",
				slog.String("peer", addr),
				slog.String("error", err.Error()),
			)
		}
	}
}
