package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchain/kitchain/internal/domain"
)

// BlockStore implements domain.BlockStore using PostgreSQL. The custody
// payload is stored as the canonical JSON used for hashing, so a block read
// back re-hashes to the same digest it was written with.
type BlockStore struct {
	pool *pgxpool.Pool
}

// NewBlockStore creates a new BlockStore backed by the given connection pool.
func NewBlockStore(pool *pgxpool.Pool) *BlockStore {
	return &BlockStore{pool: pool}
}

const blockColumns = `block_index, block_timestamp, payload, previous_hash, hash, status`

// Append persists one block. The primary key on block_index rejects a write
// at an occupied position.
func (s *BlockStore) Append(ctx context.Context, b domain.Block) error {
	payload, err := json.Marshal(b.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal block %d payload: %w", b.Index, err)
	}

	const query = `
		INSERT INTO blocks (block_index, block_timestamp, payload, previous_hash, hash, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`

	_, err = s.pool.Exec(ctx, query,
		b.Index, b.Timestamp.UTC(), payload, b.PreviousHash, b.Hash, string(b.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: append block %d: %w", b.Index, err)
	}
	return nil
}

// List returns the full chain ordered by ascending index.
func (s *BlockStore) List(ctx context.Context) ([]domain.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_index ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocks: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

// Latest returns the block with the highest index.
func (s *BlockStore) Latest(ctx context.Context) (domain.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks ORDER BY block_index DESC LIMIT 1`

	b, err := scanBlock(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Block{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Block{}, fmt.Errorf("postgres: latest block: %w", err)
	}
	return b, nil
}

// GetByIndex returns the block at the given index.
func (s *BlockStore) GetByIndex(ctx context.Context, index int64) (domain.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE block_index = $1`

	b, err := scanBlock(s.pool.QueryRow(ctx, query, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Block{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Block{}, fmt.Errorf("postgres: block %d: %w", index, err)
	}
	return b, nil
}

// ListBySubject returns blocks whose payload subject matches, in index order.
func (s *BlockStore) ListBySubject(ctx context.Context, subjectID string) ([]domain.Block, error) {
	query := `SELECT ` + blockColumns + `
		FROM blocks
		WHERE payload->>'subjectId' = $1
		ORDER BY block_index ASC`

	rows, err := s.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocks for subject %s: %w", subjectID, err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

// Count returns the chain length.
func (s *BlockStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count blocks: %w", err)
	}
	return n, nil
}

// DeleteLatest removes and returns the block with the highest index.
func (s *BlockStore) DeleteLatest(ctx context.Context) (domain.Block, error) {
	const query = `
		DELETE FROM blocks
		WHERE block_index = (SELECT MAX(block_index) FROM blocks)
		RETURNING ` + blockColumns

	b, err := scanBlock(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Block{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Block{}, fmt.Errorf("postgres: delete latest block: %w", err)
	}
	return b, nil
}

// ReplaceAll clears the table and writes blocks in order inside a single
// transaction so a reader never observes a half-replaced chain.
func (s *BlockStore) ReplaceAll(ctx context.Context, blocks []domain.Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM blocks`); err != nil {
		return fmt.Errorf("postgres: clear blocks: %w", err)
	}

	const insert = `
		INSERT INTO blocks (block_index, block_timestamp, payload, previous_hash, hash, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`

	batch := &pgx.Batch{}
	for _, b := range blocks {
		payload, err := json.Marshal(b.Data)
		if err != nil {
			return fmt.Errorf("postgres: marshal block %d payload: %w", b.Index, err)
		}
		batch.Queue(insert, b.Index, b.Timestamp.UTC(), payload, b.PreviousHash, b.Hash, string(b.Status))
	}

	br := tx.SendBatch(ctx, batch)
	for i := range blocks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: replace block item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close replace batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace: %w", err)
	}
	return nil
}

// scanBlock scans a single block row into a domain.Block.
func scanBlock(row pgx.Row) (domain.Block, error) {
	var (
		b       domain.Block
		ts      time.Time
		payload []byte
		status  *string
	)
	if err := row.Scan(&b.Index, &ts, &payload, &b.PreviousHash, &b.Hash, &status); err != nil {
		return domain.Block{}, err
	}

	b.Timestamp = ts.UTC()
	if err := json.Unmarshal(payload, &b.Data); err != nil {
		return domain.Block{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if status != nil {
		b.Status = domain.BlockStatus(*status)
	}
	return b, nil
}

func collectBlocks(rows pgx.Rows) ([]domain.Block, error) {
	var out []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan block: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: block rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.BlockStore = (*BlockStore)(nil)
