package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kitchain/kitchain/internal/domain"
)

// headKey is the Redis key holding the JSON encoding of the latest block.
const headKey = "chain:head"

// headTTL bounds staleness if an invalidation is ever missed.
const headTTL = 5 * time.Minute

// HeadCache implements domain.HeadCache on Redis. The head entry is set
// after every successful append and invalidated on chain replacement and
// rollback, so readers of the latest block skip the block store entirely.
type HeadCache struct {
	rdb *redis.Client
}

// NewHeadCache creates a HeadCache backed by the given Client.
func NewHeadCache(c *Client) *HeadCache {
	return &HeadCache{rdb: c.Underlying()}
}

// SetHead stores the latest block.
func (hc *HeadCache) SetHead(ctx context.Context, b domain.Block) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("redis: encode head block: %w", err)
	}
	if err := hc.rdb.Set(ctx, headKey, payload, headTTL).Err(); err != nil {
		return fmt.Errorf("redis: set head block: %w", err)
	}
	return nil
}

// GetHead returns the cached latest block, or domain.ErrNotFound when no
// head is cached.
func (hc *HeadCache) GetHead(ctx context.Context) (domain.Block, error) {
	payload, err := hc.rdb.Get(ctx, headKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Block{}, domain.ErrNotFound
		}
		return domain.Block{}, fmt.Errorf("redis: get head block: %w", err)
	}

	var b domain.Block
	if err := json.Unmarshal(payload, &b); err != nil {
		return domain.Block{}, fmt.Errorf("redis: decode head block: %w", err)
	}
	return b, nil
}

// Invalidate drops the cached head.
func (hc *HeadCache) Invalidate(ctx context.Context) error {
	if err := hc.rdb.Del(ctx, headKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate head block: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HeadCache = (*HeadCache)(nil)
