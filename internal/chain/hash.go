// Package chain implements the hash-chained custody ledger: block production,
// link verification, tamper auditing, and longest-valid-chain replacement.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
)

// CanonicalData returns the canonical JSON encoding of a record used as hash
// input. Struct field order is fixed by declaration, so the encoding is
// deterministic and byte-reproducible across nodes.
func CanonicalData(r domain.CustodyRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("chain: canonicalize record: %w", err)
	}
	return data, nil
}

// ComputeHash returns the hex-encoded SHA-256 digest of the concatenation of
// the stringified index, the RFC 3339 timestamp, the canonical JSON payload,
// and the previous hex digest. It is a pure function: identical inputs always
// yield the identical digest.
func ComputeHash(index int64, ts time.Time, data domain.CustodyRecord, previousHash string) (string, error) {
	canonical, err := CanonicalData(data)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(index, 10)))
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	h.Write(canonical)
	h.Write([]byte(previousHash))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// blockHash recomputes the digest a block claims for itself.
func blockHash(b domain.Block) (string, error) {
	return ComputeHash(b.Index, b.Timestamp, b.Data, b.PreviousHash)
}
