// Package market implements the constant-relation automated market maker for
// binary-outcome prediction markets: share pricing, pool accounting, and
// resolution.
package market

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kitchain/kitchain/internal/domain"
)

// Engine owns every market's lifecycle from creation through resolution. The
// markets map is explicit engine state, injected where needed rather than a
// package-level singleton; it lives for one process lifetime.
//
// Mutations to a single market are serialized by the engine lock so two
// simultaneous buys cannot interleave their pool read-modify-write.
type Engine struct {
	mu      sync.RWMutex
	markets map[string]*domain.Market
	logger  *slog.Logger
}

// NewEngine creates an empty market Engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		markets: make(map[string]*domain.Market),
		logger:  logger.With(slog.String("component", "market")),
	}
}

// Price is the constant-relation cost for amount shares of an outcome:
// amount * (otherPool / ownPool), rounded to two decimals. The price is
// linear in amount at the pre-trade pool snapshot; it is not integrated
// across the trade. That is the contract, not an approximation to fix.
func Price(poolCurrent, poolOther, amount float64) float64 {
	return round2(amount * (poolOther / poolCurrent))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Create opens a new market for the given subject. A zero id is replaced with
// a fresh UUID. Both pools start at domain.InitialPoolCredits.
func (e *Engine) Create(id, question, subjectID string, deadline time.Time, createdBy string) (domain.Market, error) {
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.markets[id]; ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrAlreadyExists)
	}

	m := &domain.Market{
		ID:        id,
		Question:  question,
		SubjectID: subjectID,
		Deadline:  deadline,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		YesPool:   domain.InitialPoolCredits,
		NoPool:    domain.InitialPoolCredits,
		Status:    domain.MarketStatusOpen,
	}
	e.markets[id] = m

	e.logger.Info("market created",
		slog.String("market_id", id),
		slog.String("subject_id", subjectID),
	)

	return *m, nil
}

// Get returns a snapshot of the market.
func (e *Engine) Get(id string) (domain.Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return *m, nil
}

// List returns snapshots of all markets, newest first.
func (e *Engine) List() []domain.Market {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Market, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Buy issues amount shares of outcome against the market's pool and returns
// the cost. The own-side pool shrinks by amount; a trade that would drain or
// overdraw the pool is rejected before any mutation.
func (e *Engine) Buy(marketID string, outcome domain.Outcome, amount float64) (float64, error) {
	if !outcome.Valid() || amount <= 0 {
		return 0, fmt.Errorf("%w: outcome %q amount %.2f", domain.ErrValidation, outcome, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[marketID]
	if !ok {
		return 0, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}
	if m.Status != domain.MarketStatusOpen {
		return 0, fmt.Errorf("market %s: %w", marketID, domain.ErrMarketResolved)
	}
	if amount >= m.Pool(outcome) {
		return 0, fmt.Errorf("market %s: buy %.2f against pool %.2f: %w",
			marketID, amount, m.Pool(outcome), domain.ErrInsufficientLiquidity)
	}

	cost := Price(m.Pool(outcome), m.Pool(outcome.Other()), amount)

	if outcome == domain.OutcomeYes {
		m.YesPool -= amount
	} else {
		m.NoPool -= amount
	}
	m.TotalVolume = round2(m.TotalVolume + cost)

	return cost, nil
}

// Sell returns amount shares of outcome to the pool and returns the payout at
// the pre-trade pool ratio. Holdings sufficiency is the position ledger's
// concern; the engine only guards pool and status invariants.
func (e *Engine) Sell(marketID string, outcome domain.Outcome, amount float64) (float64, error) {
	if !outcome.Valid() || amount <= 0 {
		return 0, fmt.Errorf("%w: outcome %q amount %.2f", domain.ErrValidation, outcome, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[marketID]
	if !ok {
		return 0, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}
	if m.Status != domain.MarketStatusOpen {
		return 0, fmt.Errorf("market %s: %w", marketID, domain.ErrMarketResolved)
	}

	payout := Price(m.Pool(outcome), m.Pool(outcome.Other()), amount)

	if outcome == domain.OutcomeYes {
		m.YesPool += amount
	} else {
		m.NoPool += amount
	}
	m.TotalVolume = round2(m.TotalVolume + payout)

	return payout, nil
}

// Resolve sets the winning outcome and moves the market to RESOLVED, exactly
// once. Settlement of participant positions is a separate explicit step so
// that resolution and payout can be decoupled.
func (e *Engine) Resolve(marketID string, outcome domain.Outcome) (domain.Market, error) {
	if !outcome.Valid() {
		return domain.Market{}, fmt.Errorf("%w: outcome %q", domain.ErrValidation, outcome)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[marketID]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.Market{}, fmt.Errorf("market %s: %w", marketID, domain.ErrMarketResolved)
	}

	won := outcome
	m.WinningOutcome = &won
	m.Status = domain.MarketStatusResolved

	e.logger.Info("market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
	)

	return *m, nil
}

// Probabilities returns the implied probability of each outcome in whole
// percent. An outcome's probability is proportional to the opposing pool: a
// smaller own pool means a higher cost per share, which reads as higher
// implied probability.
func (e *Engine) Probabilities(marketID string) (domain.Probabilities, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.markets[marketID]
	if !ok {
		return domain.Probabilities{}, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}

	yes := int(math.Round(m.NoPool / (m.YesPool + m.NoPool) * 100))
	return domain.Probabilities{Yes: yes, No: 100 - yes}, nil
}
