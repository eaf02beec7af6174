package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")

	// ErrValidation covers missing or out-of-range record fields and bad
	// signatures; rejected before any durable write.
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity marks hash mismatches and broken chain links. Audit
	// operations report these as data rather than failing.
	ErrIntegrity = errors.New("chain integrity violation")

	// ErrConflict marks a received block whose index collides with a stored
	// block of a different hash.
	ErrConflict = errors.New("conflicting block")

	// ErrStaleBlock marks a received block at or below the local head index.
	ErrStaleBlock = errors.New("stale block")

	ErrMarketResolved        = errors.New("market already resolved")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientCredits   = errors.New("insufficient credits")

	// ErrPeerUnavailable is caught at the gossip boundary and logged; it never
	// propagates to the operation that triggered the broadcast.
	ErrPeerUnavailable = errors.New("peer unavailable")

	ErrSigningFailed = errors.New("signing failed")
)
