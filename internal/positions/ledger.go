// Package positions keeps the in-memory incentive-credit ledger: per
// participant credit balances, per-market share holdings, prediction stats,
// and one-time settlement after market resolution.
package positions

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kitchain/kitchain/internal/domain"
)

type account struct {
	credits  float64
	holdings map[string]*domain.Holding // keyed by market ID
	stats    domain.ParticipantStats
}

// Ledger owns the Position and ParticipantStats lifecycle. It is mutated only
// through market transactions and settlement; every mutation either fully
// succeeds or leaves the account untouched.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	logger   *slog.Logger
}

// NewLedger creates an empty Ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		logger:   logger.With(slog.String("component", "positions")),
	}
}

// InitializeParticipant creates an account with startingCredits. Calling it
// for an existing participant is a no-op.
func (l *Ledger) InitializeParticipant(id string, startingCredits float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLocked(id, startingCredits)
}

func (l *Ledger) ensureLocked(id string, startingCredits float64) *account {
	acct, ok := l.accounts[id]
	if !ok {
		acct = &account{
			credits:  startingCredits,
			holdings: make(map[string]*domain.Holding),
		}
		l.accounts[id] = acct
	}
	return acct
}

// Shares returns the participant's share count for one outcome of one market.
// Unknown participants and markets hold zero shares.
func (l *Ledger) Shares(participant, marketID string, outcome domain.Outcome) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[participant]
	if !ok {
		return 0
	}
	h, ok := acct.holdings[marketID]
	if !ok {
		return 0
	}
	return h.Shares(outcome)
}

// RecordBuy debits cost from the participant's credits and adds shares to
// their holding for the market. It rejects, without mutating, when credits
// are insufficient. Participants unknown to the ledger are initialized with
// the standard starting balance first.
func (l *Ledger) RecordBuy(participant, marketID string, outcome domain.Outcome, shares, cost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.ensureLocked(participant, domain.StartingCredits)
	if acct.credits < cost {
		return fmt.Errorf("participant %s: need %.2f credits, have %.2f: %w",
			participant, cost, acct.credits, domain.ErrInsufficientCredits)
	}

	acct.credits -= cost
	h, ok := acct.holdings[marketID]
	if !ok {
		h = &domain.Holding{}
		acct.holdings[marketID] = h
	}
	if outcome == domain.OutcomeYes {
		h.Yes += shares
	} else {
		h.No += shares
	}
	acct.stats.TotalTrades++
	acct.stats.Profit -= cost

	return nil
}

// RecordSell removes shares from the participant's holding and credits the
// payout. It rejects, without mutating, when the holding is insufficient.
func (l *Ledger) RecordSell(participant, marketID string, outcome domain.Outcome, shares, payout float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[participant]
	if !ok {
		return fmt.Errorf("participant %s holds no shares: %w", participant, domain.ErrInsufficientShares)
	}
	h, ok := acct.holdings[marketID]
	if !ok || h.Shares(outcome) < shares {
		return fmt.Errorf("participant %s: selling %.2f %s shares of market %s: %w",
			participant, shares, outcome, marketID, domain.ErrInsufficientShares)
	}

	if outcome == domain.OutcomeYes {
		h.Yes -= shares
	} else {
		h.No -= shares
	}
	acct.credits += payout
	acct.stats.TotalTrades++
	acct.stats.Profit += payout

	return nil
}

// ResolvePosition settles one participant's holding in a resolved market:
// prediction counters are bumped, winning shares pay out one credit each, and
// the holding is cleared. A second call finds no holding and is a no-op, so
// settlement is idempotent per participant.
func (l *Ledger) ResolvePosition(participant, marketID string, winning domain.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[participant]
	if !ok {
		return
	}
	h, ok := acct.holdings[marketID]
	if !ok || h.Empty() {
		delete(acct.holdings, marketID)
		return
	}

	acct.stats.TotalPredictions++
	if winShares := h.Shares(winning); winShares > 0 {
		acct.stats.CorrectPredictions++
		acct.credits += winShares
		acct.stats.Profit += winShares
	}

	delete(acct.holdings, marketID)

	l.logger.Info("position settled",
		slog.String("participant", participant),
		slog.String("market_id", marketID),
		slog.String("winning", string(winning)),
	)
}

// Participants returns the IDs of every known participant.
func (l *Ledger) Participants() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Summary returns the participant's full market state. Unknown participants
// get an empty summary with zero credits.
func (l *Ledger) Summary(participant string) domain.ParticipantSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := domain.ParticipantSummary{
		Participant: participant,
		Holdings:    make(map[string]domain.Holding),
	}

	acct, ok := l.accounts[participant]
	if !ok {
		return summary
	}

	summary.Credits = acct.credits
	summary.Stats = acct.stats
	for marketID, h := range acct.holdings {
		summary.Holdings[marketID] = *h
	}
	return summary
}

// Leaderboard lists every participant with recorded stats sorted by accuracy
// descending, ties broken by descending profit.
func (l *Ledger) Leaderboard() []domain.LeaderboardEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.LeaderboardEntry, 0, len(l.accounts))
	for id, acct := range l.accounts {
		out = append(out, domain.LeaderboardEntry{
			Participant: id,
			Accuracy:    acct.stats.Accuracy(),
			Stats:       acct.stats,
			Credits:     acct.credits,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		return out[i].Stats.Profit > out[j].Stats.Profit
	})

	return out
}
