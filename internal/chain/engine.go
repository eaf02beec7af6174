package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
)

// Engine builds, verifies, and heals the local chain. A single mutex
// serializes every mutating operation against the block store so concurrent
// appends cannot compute the same next index and a replacement cannot race an
// in-flight append. Reads go straight to the store.
type Engine struct {
	store  domain.BlockStore
	logger *slog.Logger

	mu sync.Mutex // guards all chain mutations
}

// NewEngine creates an Engine over the given block store.
func NewEngine(store domain.BlockStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With(slog.String("component", "chain")),
	}
}

// AppendRecord builds the next block for payload, links it to the current
// head, persists it, and returns it. Broadcasting the block to peers is the
// caller's responsibility and must happen after the local commit.
func (e *Engine) AppendRecord(ctx context.Context, payload domain.CustodyRecord) (domain.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		index        int64
		previousHash = domain.GenesisPreviousHash
	)

	latest, err := e.store.Latest(ctx)
	switch {
	case err == nil:
		index = latest.Index + 1
		previousHash = latest.Hash
	case errors.Is(err, domain.ErrNotFound):
		// Empty store: this block is genesis.
	default:
		return domain.Block{}, fmt.Errorf("chain: read latest: %w", err)
	}

	// Second precision keeps the RFC 3339 hash input and the JSON wire
	// encoding byte-identical after a round trip.
	ts := time.Now().UTC().Truncate(time.Second)

	hash, err := ComputeHash(index, ts, payload, previousHash)
	if err != nil {
		return domain.Block{}, err
	}

	block := domain.Block{
		Index:        index,
		Timestamp:    ts,
		Data:         payload,
		PreviousHash: previousHash,
		Hash:         hash,
	}

	if err := e.store.Append(ctx, block); err != nil {
		return domain.Block{}, fmt.Errorf("chain: append block %d: %w", index, err)
	}

	e.logger.InfoContext(ctx, "block appended",
		slog.Int64("index", block.Index),
		slog.String("subject_id", payload.SubjectID),
		slog.String("hash", block.Hash),
	)

	return block, nil
}

// VerifyChain reports whether blocks form an internally consistent chain:
// every block's stored hash matches its recomputed digest, indexes are dense
// from the first block, and every link points at its predecessor's stored
// hash. It short-circuits on the first mismatch; use DetectTampering for a
// full report.
func (e *Engine) VerifyChain(blocks []domain.Block) bool {
	for i, b := range blocks {
		expected, err := blockHash(b)
		if err != nil || expected != b.Hash {
			return false
		}
		if i > 0 {
			prev := blocks[i-1]
			if b.Index != prev.Index+1 || b.PreviousHash != prev.Hash {
				return false
			}
		}
	}
	return true
}

// DetectTampering audits blocks without short-circuiting and reports every
// block whose own hash is wrong or whose link to its predecessor is broken.
// The link check compares against the predecessor's stored hash, so a single
// mutated payload implicates exactly one block. It never repairs anything.
func (e *Engine) DetectTampering(blocks []domain.Block) []domain.TamperReport {
	var reports []domain.TamperReport

	for i, b := range blocks {
		expected, err := blockHash(b)
		switch {
		case err != nil:
			reports = append(reports, domain.TamperReport{
				Index:  b.Index,
				Reason: fmt.Sprintf("payload not canonicalizable: %v", err),
			})
		case expected != b.Hash:
			reports = append(reports, domain.TamperReport{
				Index:  b.Index,
				Reason: "stored hash does not match recomputed digest",
			})
		}

		if i > 0 {
			prev := blocks[i-1]
			if b.PreviousHash != prev.Hash {
				reports = append(reports, domain.TamperReport{
					Index:  b.Index,
					Reason: fmt.Sprintf("previousHash does not match block %d", prev.Index),
				})
			}
		}
	}

	return reports
}

// ReplaceChain adopts candidate as the new local chain iff it is strictly
// longer than the local chain and internally valid. On acceptance the store
// is atomically cleared and rewritten; on rejection local state is untouched.
// This is longest-valid-chain-wins with no further fork choice.
func (e *Engine) ReplaceChain(ctx context.Context, candidate []domain.Block) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	localLen, err := e.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("chain: count local blocks: %w", err)
	}

	if int64(len(candidate)) <= localLen {
		e.logger.InfoContext(ctx, "replacement rejected: candidate not longer",
			slog.Int("candidate_len", len(candidate)),
			slog.Int64("local_len", localLen),
		)
		return false, nil
	}

	if !e.VerifyChain(candidate) {
		e.logger.WarnContext(ctx, "replacement rejected: candidate failed verification",
			slog.Int("candidate_len", len(candidate)),
		)
		return false, nil
	}

	if err := e.store.ReplaceAll(ctx, candidate); err != nil {
		return false, fmt.Errorf("chain: replace local chain: %w", err)
	}

	e.logger.InfoContext(ctx, "local chain replaced",
		slog.Int64("previous_len", localLen),
		slog.Int("new_len", len(candidate)),
	)

	return true, nil
}

// SaveReceivedBlock validates and stores a single block pushed by a peer.
// A byte-identical block at an occupied index is accepted idempotently; a
// differing block at the same index is a conflict; an index at or below the
// head is stale. Otherwise the block is written as-is. The block's
// previousHash is deliberately not cross-checked against the local head here;
// disconnected blocks surface through DetectTampering instead.
func (e *Engine) SaveReceivedBlock(ctx context.Context, b domain.Block) (bool, error) {
	expected, err := blockHash(b)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if expected != b.Hash {
		return false, fmt.Errorf("%w: block %d hash mismatch", domain.ErrIntegrity, b.Index)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.GetByIndex(ctx, b.Index)
	switch {
	case err == nil:
		if existing.Hash == b.Hash {
			return true, nil
		}
		return false, fmt.Errorf("%w: index %d already holds %s", domain.ErrConflict, b.Index, existing.Hash)
	case errors.Is(err, domain.ErrNotFound):
		// Index unoccupied, fall through.
	default:
		return false, fmt.Errorf("chain: lookup block %d: %w", b.Index, err)
	}

	latest, err := e.store.Latest(ctx)
	if err == nil && b.Index <= latest.Index {
		return false, fmt.Errorf("%w: index %d at or below head %d", domain.ErrStaleBlock, b.Index, latest.Index)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("chain: read latest: %w", err)
	}

	if err := e.store.Append(ctx, b); err != nil {
		return false, fmt.Errorf("chain: store received block %d: %w", b.Index, err)
	}

	e.logger.InfoContext(ctx, "received block stored",
		slog.Int64("index", b.Index),
		slog.String("hash", b.Hash),
	)

	return true, nil
}

// GetLatest returns the head block, or domain.ErrNotFound on an empty chain.
func (e *Engine) GetLatest(ctx context.Context) (domain.Block, error) {
	return e.store.Latest(ctx)
}

// GetFullChain returns the entire local chain in index order.
func (e *Engine) GetFullChain(ctx context.Context) ([]domain.Block, error) {
	return e.store.List(ctx)
}

// GetHistory returns, in creation order, every block whose payload belongs to
// subjectID.
func (e *Engine) GetHistory(ctx context.Context, subjectID string) ([]domain.Block, error) {
	return e.store.ListBySubject(ctx, subjectID)
}

// Length returns the local chain length.
func (e *Engine) Length(ctx context.Context) (int64, error) {
	return e.store.Count(ctx)
}

// RollbackLatest deletes the head block and returns it. This breaks
// forward-link compatibility for anything appended after the deleted block
// and exists only as an out-of-band admin maintenance operation; callers must
// audit-log every use.
func (e *Engine) RollbackLatest(ctx context.Context) (domain.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.store.DeleteLatest(ctx)
	if err != nil {
		return domain.Block{}, fmt.Errorf("chain: rollback latest: %w", err)
	}

	e.logger.WarnContext(ctx, "head block rolled back",
		slog.Int64("index", removed.Index),
		slog.String("subject_id", removed.Data.SubjectID),
	)

	return removed, nil
}
