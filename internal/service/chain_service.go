// Package service contains the orchestration layer. Services compose the
// chain engine, the market engine, the gossip layer and the infrastructure
// adapters (stores, caches, notifiers) behind the HTTP surface.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitchain/kitchain/internal/chain"
	"github.com/kitchain/kitchain/internal/crypto"
	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/gossip"
	"github.com/kitchain/kitchain/internal/notify"
)

// broadcastTimeout bounds the background gossip fan-out after an append.
const broadcastTimeout = 30 * time.Second

// ChainService handles the custody record lifecycle: validation, signing,
// appending to the local chain, and replication to peers.
type ChainService struct {
	engine   *chain.Engine
	gossip   *gossip.Layer
	signer   *crypto.Signer
	head     domain.HeadCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewChainService creates a ChainService with all required dependencies.
// The head cache may be nil, in which case latest-block reads always hit
// the store.
func NewChainService(
	engine *chain.Engine,
	gossipLayer *gossip.Layer,
	signer *crypto.Signer,
	head domain.HeadCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *ChainService {
	return &ChainService{
		engine:   engine,
		gossip:   gossipLayer,
		signer:   signer,
		head:     head,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "chain_service")),
	}
}

// AppendRecord validates a custody record, signs it with the node key if it
// arrives unsigned, appends it to the local chain, and replicates the new
// block to all known peers in the background. Replication failures never
// fail the append.
func (s *ChainService) AppendRecord(ctx context.Context, record domain.CustodyRecord) (domain.Block, error) {
	if s.signer == nil {
		// Observer nodes replicate but never author records.
		return domain.Block{}, fmt.Errorf("chain_service: node has no signing key: %w", domain.ErrUnauthorized)
	}

	// Sign before validating: records arrive unsigned from operators, and
	// Validate requires the signature the signer is about to produce.
	if record.Signature == "" {
		sig, err := s.signer.SignRecord(record)
		if err != nil {
			return domain.Block{}, fmt.Errorf("chain_service: sign record: %w", err)
		}
		record.Signature = sig
	} else if err := crypto.VerifyRecordBy(record, s.signer.Address()); err != nil {
		return domain.Block{}, fmt.Errorf("chain_service: %w", err)
	}

	if err := record.Validate(); err != nil {
		return domain.Block{}, fmt.Errorf("chain_service: %w", err)
	}

	block, err := s.engine.AppendRecord(ctx, record)
	if err != nil {
		return domain.Block{}, fmt.Errorf("chain_service: append: %w", err)
	}

	s.cacheHead(ctx, block)
	s.publishBlockEvent(ctx, "block_appended", block)

	if auditErr := s.audit.Log(ctx, "block_appended", map[string]any{
		"index":   block.Index,
		"hash":    block.Hash,
		"subject": block.Data.SubjectID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.Int64("index", block.Index),
			slog.String("error", auditErr.Error()),
		)
	}

	// Replicate in the background so slow peers never delay the caller.
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		defer cancel()
		s.gossip.Broadcast(bctx, block)
	}()

	s.logger.InfoContext(ctx, "record appended",
		slog.Int64("index", block.Index),
		slog.String("subject", record.SubjectID),
	)

	return block, nil
}

// ReceiveBlock handles a block pushed by a peer. Accepted blocks update the
// head cache and emit a signal bus event.
func (s *ChainService) ReceiveBlock(ctx context.Context, b domain.Block) gossip.ReceiveResult {
	result := s.gossip.Receive(ctx, b)

	if result.Accepted {
		// A duplicate push is accepted idempotently, so the pushed block is
		// not necessarily the head. Cache what the engine reports.
		if latest, err := s.engine.GetLatest(ctx); err == nil {
			s.cacheHead(ctx, latest)
		}
		s.publishBlockEvent(ctx, "block_received", b)
	}

	if auditErr := s.audit.Log(ctx, "block_received", map[string]any{
		"index":    b.Index,
		"hash":     b.Hash,
		"accepted": result.Accepted,
		"status":   string(result.Status),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.Int64("index", b.Index),
			slog.String("error", auditErr.Error()),
		)
	}

	return result
}

// GetLatest returns the most recent block, served from the head cache when
// possible.
func (s *ChainService) GetLatest(ctx context.Context) (domain.Block, error) {
	if s.head != nil {
		if b, err := s.head.GetHead(ctx); err == nil {
			return b, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "head cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	b, err := s.engine.GetLatest(ctx)
	if err != nil {
		return domain.Block{}, fmt.Errorf("chain_service: get latest: %w", err)
	}
	s.cacheHead(ctx, b)
	return b, nil
}

// GetChain returns the full local chain ordered by index.
func (s *ChainService) GetChain(ctx context.Context) ([]domain.Block, error) {
	blocks, err := s.engine.GetFullChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain_service: get chain: %w", err)
	}
	return blocks, nil
}

// GetHistory returns every block whose record concerns the given subject.
func (s *ChainService) GetHistory(ctx context.Context, subjectID string) ([]domain.Block, error) {
	blocks, err := s.engine.GetHistory(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("chain_service: history for %q: %w", subjectID, err)
	}
	return blocks, nil
}

// RollbackLatest removes the newest non-genesis block.
func (s *ChainService) RollbackLatest(ctx context.Context) (domain.Block, error) {
	removed, err := s.engine.RollbackLatest(ctx)
	if err != nil {
		return domain.Block{}, fmt.Errorf("chain_service: rollback: %w", err)
	}

	s.invalidateHead(ctx)

	if auditErr := s.audit.Log(ctx, "block_rolled_back", map[string]any{
		"index": removed.Index,
		"hash":  removed.Hash,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.Int64("index", removed.Index),
			slog.String("error", auditErr.Error()),
		)
	}

	return removed, nil
}

// RegisterPeer adds a peer address to the registry and notifies operators
// of first-time registrations.
func (s *ChainService) RegisterPeer(ctx context.Context, address string) bool {
	added := s.gossip.RegisterPeer(address)
	if !added {
		return false
	}

	if auditErr := s.audit.Log(ctx, "peer_registered", map[string]any{
		"address": address,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("peer", address),
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.EventPeerRegistered,
			"Peer registered",
			fmt.Sprintf("New peer joined the gossip mesh: %s", address),
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return true
}

// Peers returns all registered peers.
func (s *ChainService) Peers() []domain.Peer {
	return s.gossip.Peers()
}

// SyncOnStartup registers the configured peers, announces this node to them,
// and adopts the first longer valid chain any of them offers. If the
// adoption succeeds, operators are notified that the local chain was
// replaced.
func (s *ChainService) SyncOnStartup(ctx context.Context, knownPeers []string, self string) {
	if len(knownPeers) == 0 {
		return
	}

	// Register before announcing: AnnounceTo walks the registry, which is
	// empty until the configured peers are added.
	for _, addr := range knownPeers {
		s.gossip.RegisterPeer(addr)
	}
	s.gossip.AnnounceTo(ctx, self)

	if !s.gossip.InitializeSync(ctx, knownPeers) {
		s.logger.InfoContext(ctx, "startup sync: keeping local chain",
			slog.Int("peers", len(knownPeers)),
		)
		return
	}

	s.invalidateHead(ctx)

	if auditErr := s.audit.Log(ctx, "chain_replaced", map[string]any{
		"source": "startup_sync",
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.EventChainReplaced,
			"Chain replaced",
			"Local chain was replaced by a longer valid chain during startup sync.",
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *ChainService) cacheHead(ctx context.Context, b domain.Block) {
	if s.head == nil {
		return
	}
	if err := s.head.SetHead(ctx, b); err != nil {
		s.logger.WarnContext(ctx, "head cache write failed",
			slog.Int64("index", b.Index),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ChainService) invalidateHead(ctx context.Context) {
	if s.head == nil {
		return
	}
	if err := s.head.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "head cache invalidate failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *ChainService) publishBlockEvent(ctx context.Context, event string, b domain.Block) {
	evt, _ := json.Marshal(map[string]any{
		"event": event,
		"index": b.Index,
		"hash":  b.Hash,
	})
	if err := s.bus.Publish(ctx, "chain.blocks", evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
