package domain

import "time"

// GenesisPreviousHash is the sentinel previous-hash carried by the genesis
// block: 32 zero bytes, hex encoded.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// BlockStatus is the verification tag attached to a block when it is received
// from a peer. Locally produced blocks carry no status.
type BlockStatus string

const (
	BlockStatusVerified   BlockStatus = "verified"
	BlockStatusTampered   BlockStatus = "tampered"
	BlockStatusUnverified BlockStatus = "unverified"
)

// Block is one immutable, hash-linked record in the custody ledger. The JSON
// encoding of this struct is the durable record format and the gossip wire
// format; two nodes computing the same block from the same inputs must produce
// byte-identical encodings.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    time.Time     `json:"timestamp"`
	Data         CustodyRecord `json:"data"`
	PreviousHash string        `json:"previousHash"`
	Hash         string        `json:"hash"`
	Status       BlockStatus   `json:"status,omitempty"`
}

// IsGenesis reports whether the block occupies the genesis position.
func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == GenesisPreviousHash
}

// TamperReport identifies one invalid block found during a chain audit.
type TamperReport struct {
	Index  int64  `json:"index"`
	Reason string `json:"reason"`
}
