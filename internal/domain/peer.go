package domain

import "time"

// Peer is a reachable address of another ledger node. Peers self-announce via
// registration; the set lives for one process lifetime and is never persisted
// by the core.
type Peer struct {
	Address      string    `json:"address"`
	RegisteredAt time.Time `json:"registeredAt"`
}
