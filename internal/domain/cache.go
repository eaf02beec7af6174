package domain

import (
	"context"
	"time"
)

// HeadCache provides fast access to the latest committed block so read-heavy
// endpoints do not hit the block store.
type HeadCache interface {
	SetHead(ctx context.Context, b Block) error
	GetHead(ctx context.Context) (Block, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of node events (block appended, tamper
// detected, market resolved) to in-process subscribers such as the WebSocket
// hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
