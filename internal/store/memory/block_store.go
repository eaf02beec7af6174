// Package memory provides in-memory store implementations used by tests and
// by nodes running without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kitchain/kitchain/internal/domain"
)

// BlockStore implements domain.BlockStore with a slice guarded by a RWMutex.
// Blocks are held in index order.
type BlockStore struct {
	mu     sync.RWMutex
	blocks []domain.Block
}

// NewBlockStore creates an empty BlockStore.
func NewBlockStore() *BlockStore {
	return &BlockStore{}
}

// Append persists one block, rejecting duplicates at an occupied index.
func (s *BlockStore) Append(_ context.Context, b domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.blocks {
		if existing.Index == b.Index {
			return fmt.Errorf("memory: block %d: %w", b.Index, domain.ErrAlreadyExists)
		}
	}
	s.blocks = append(s.blocks, b)
	return nil
}

// List returns a copy of the full chain in index order.
func (s *BlockStore) List(_ context.Context) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Block, len(s.blocks))
	copy(out, s.blocks)
	return out, nil
}

// Latest returns the highest-index block or domain.ErrNotFound when empty.
func (s *BlockStore) Latest(_ context.Context) (domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return domain.Block{}, domain.ErrNotFound
	}
	return s.blocks[len(s.blocks)-1], nil
}

// GetByIndex returns the block at index or domain.ErrNotFound.
func (s *BlockStore) GetByIndex(_ context.Context, index int64) (domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks {
		if b.Index == index {
			return b, nil
		}
	}
	return domain.Block{}, domain.ErrNotFound
}

// ListBySubject returns blocks whose payload subject matches, in order.
func (s *BlockStore) ListBySubject(_ context.Context, subjectID string) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Block
	for _, b := range s.blocks {
		if b.Data.SubjectID == subjectID {
			out = append(out, b)
		}
	}
	return out, nil
}

// Count returns the chain length.
func (s *BlockStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.blocks)), nil
}

// DeleteLatest removes and returns the head block.
func (s *BlockStore) DeleteLatest(_ context.Context) (domain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) == 0 {
		return domain.Block{}, domain.ErrNotFound
	}
	removed := s.blocks[len(s.blocks)-1]
	s.blocks = s.blocks[:len(s.blocks)-1]
	return removed, nil
}

// ReplaceAll clears the store and writes blocks in the given order.
func (s *BlockStore) ReplaceAll(_ context.Context, blocks []domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = make([]domain.Block, len(blocks))
	copy(s.blocks, blocks)
	return nil
}

// Compile-time interface check.
var _ domain.BlockStore = (*BlockStore)(nil)
