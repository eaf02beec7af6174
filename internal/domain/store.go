package domain

import (
	"context"
	"time"
)

// BlockStore is the durable, append-only home of the local chain. All chain
// mutations are serialized by the chain engine; implementations only need to
// guarantee that each call is individually atomic.
type BlockStore interface {
	// Append persists one block. It must fail, not overwrite, if a block at
	// the same index already exists.
	Append(ctx context.Context, b Block) error

	// List returns the full chain ordered by ascending index.
	List(ctx context.Context) ([]Block, error)

	// Latest returns the block with the highest index, or ErrNotFound when
	// the store is empty.
	Latest(ctx context.Context) (Block, error)

	// GetByIndex returns the block at the given index, or ErrNotFound.
	GetByIndex(ctx context.Context, index int64) (Block, error)

	// ListBySubject returns, in creation order, the blocks whose payload
	// subject matches subjectID.
	ListBySubject(ctx context.Context, subjectID string) ([]Block, error)

	// Count returns the chain length.
	Count(ctx context.Context) (int64, error)

	// DeleteLatest removes and returns the block with the highest index.
	// Admin-only maintenance; see the chain engine for the caveats.
	DeleteLatest(ctx context.Context) (Block, error)

	// ReplaceAll atomically clears the store and writes blocks in order.
	ReplaceAll(ctx context.Context, blocks []Block) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of integrity-relevant events:
// tamper reports, chain replacements, admin rollbacks, market resolutions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
