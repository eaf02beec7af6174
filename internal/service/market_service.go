package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/market"
	"github.com/kitchain/kitchain/internal/notify"
	"github.com/kitchain/kitchain/internal/positions"
)

// MarketService orchestrates prediction markets and the participant
// position ledger. Market pools and participant holdings live in separate
// engines; tradeMu serializes trades and resolutions so a credit check, a
// pool mutation and a holdings update always commit together.
type MarketService struct {
	markets   *market.Engine
	positions *positions.Ledger
	bus       domain.SignalBus
	audit     domain.AuditStore
	notifier  *notify.Notifier
	logger    *slog.Logger

	tradeMu sync.Mutex
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets *market.Engine,
	ledger *positions.Ledger,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		positions: ledger,
		bus:       bus,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket opens a new YES/NO market.
func (s *MarketService) CreateMarket(ctx context.Context, question, subjectID string, deadline time.Time, createdBy string) (domain.Market, error) {
	m, err := s.markets.Create("", question, subjectID, deadline, createdBy)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "market_created", map[string]any{
		"market":  m.ID,
		"subject": m.SubjectID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("market", m.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market", m.ID),
		slog.String("question", m.Question),
	)

	return m, nil
}

// GetMarket returns a single market by ID.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.Get(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns all markets.
func (s *MarketService) ListMarkets(ctx context.Context) []domain.Market {
	return s.markets.List()
}

// Probabilities returns the implied YES/NO percentages for a market.
func (s *MarketService) Probabilities(ctx context.Context, marketID string) (domain.Probabilities, error) {
	p, err := s.markets.Probabilities(marketID)
	if err != nil {
		return domain.Probabilities{}, fmt.Errorf("market_service: probabilities %q: %w", marketID, err)
	}
	return p, nil
}

// Buy purchases shares for a participant. The cost is computed at the
// pre-trade pool snapshot and the participant must be able to afford it
// before any pool is touched.
func (s *MarketService) Buy(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()

	m, err := s.markets.Get(marketID)
	if err != nil {
		return domain.MarketTrade{}, fmt.Errorf("market_service: buy: %w", err)
	}

	own, other := poolsFor(m, outcome)
	if shares >= own {
		return domain.MarketTrade{}, fmt.Errorf("market_service: buy %v shares against pool of %v: %w", shares, own, domain.ErrInsufficientLiquidity)
	}

	// First contact grants the starting balance, so the credit pre-check
	// below sees the same account RecordBuy would create.
	s.positions.InitializeParticipant(participant, domain.StartingCredits)

	cost := market.Price(own, other, shares)
	if s.positions.Summary(participant).Credits < cost {
		return domain.MarketTrade{}, fmt.Errorf("market_service: buy costs %v: %w", cost, domain.ErrInsufficientCredits)
	}

	if _, err := s.markets.Buy(marketID, outcome, shares); err != nil {
		return domain.MarketTrade{}, fmt.Errorf("market_service: buy: %w", err)
	}
	if err := s.positions.RecordBuy(participant, marketID, outcome, shares, cost); err != nil {
		// Unreachable while tradeMu serializes trades; surfaced loudly in
		// case that ever changes.
		s.logger.ErrorContext(ctx, "position ledger rejected pre-checked buy",
			slog.String("participant", participant),
			slog.String("market", marketID),
			slog.String("error", err.Error()),
		)
		return domain.MarketTrade{}, fmt.Errorf("market_service: record buy: %w", err)
	}

	trade := domain.MarketTrade{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		Participant: participant,
		Side:        domain.TradeSideBuy,
		Outcome:     outcome,
		Shares:      shares,
		Credits:     cost,
		Timestamp:   time.Now().UTC(),
	}

	s.afterTrade(ctx, trade)
	return trade, nil
}

// Sell liquidates shares for a participant at the current pool prices.
func (s *MarketService) Sell(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()

	s.positions.InitializeParticipant(participant, domain.StartingCredits)

	if held := s.positions.Shares(participant, marketID, outcome); held < shares {
		return domain.MarketTrade{}, fmt.Errorf("market_service: sell %v of %v held: %w", shares, held, domain.ErrInsufficientShares)
	}

	payout, err := s.markets.Sell(marketID, outcome, shares)
	if err != nil {
		return domain.MarketTrade{}, fmt.Errorf("market_service: sell: %w", err)
	}
	if err := s.positions.RecordSell(participant, marketID, outcome, shares, payout); err != nil {
		s.logger.ErrorContext(ctx, "position ledger rejected pre-checked sell",
			slog.String("participant", participant),
			slog.String("market", marketID),
			slog.String("error", err.Error()),
		)
		return domain.MarketTrade{}, fmt.Errorf("market_service: record sell: %w", err)
	}

	trade := domain.MarketTrade{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		Participant: participant,
		Side:        domain.TradeSideSell,
		Outcome:     outcome,
		Shares:      shares,
		Credits:     payout,
		Timestamp:   time.Now().UTC(),
	}

	s.afterTrade(ctx, trade)
	return trade, nil
}

// Resolve settles a market on the winning outcome and pays out one credit
// per winning share to every holder. Resolution is terminal; a second call
// fails in the market engine.
func (s *MarketService) Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (domain.Market, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()

	m, err := s.markets.Resolve(marketID, outcome)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve: %w", err)
	}

	for _, participant := range s.positions.Participants() {
		s.positions.ResolvePosition(participant, marketID, outcome)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":   "market_resolved",
		"market":  m.ID,
		"outcome": string(outcome),
	})
	if pubErr := s.bus.Publish(ctx, "markets", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("market", m.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "market_resolved", map[string]any{
		"market":  m.ID,
		"outcome": string(outcome),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("market", m.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.EventMarketResolved,
			"Market resolved",
			fmt.Sprintf("%q resolved %s", m.Question, outcome),
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market", m.ID),
		slog.String("outcome", string(outcome)),
	)

	return m, nil
}

// Join registers a participant with the standard starting balance. Joining
// twice is a no-op.
func (s *MarketService) Join(ctx context.Context, participant string) {
	s.positions.InitializeParticipant(participant, domain.StartingCredits)
}

// Position returns a participant's balance, holdings and prediction stats.
func (s *MarketService) Position(ctx context.Context, participant string) domain.ParticipantSummary {
	return s.positions.Summary(participant)
}

// Leaderboard ranks participants by prediction accuracy, breaking ties on
// profit.
func (s *MarketService) Leaderboard(ctx context.Context) []domain.LeaderboardEntry {
	return s.positions.Leaderboard()
}

func (s *MarketService) afterTrade(ctx context.Context, trade domain.MarketTrade) {
	evt, _ := json.Marshal(map[string]any{
		"event":   "trade_executed",
		"trade":   trade.ID,
		"market":  trade.MarketID,
		"side":    string(trade.Side),
		"outcome": string(trade.Outcome),
		"shares":  trade.Shares,
		"credits": trade.Credits,
	})
	if pubErr := s.bus.Publish(ctx, "markets", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("trade", trade.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "trade_executed", map[string]any{
		"trade":       trade.ID,
		"market":      trade.MarketID,
		"participant": trade.Participant,
		"side":        string(trade.Side),
		"outcome":     string(trade.Outcome),
		"shares":      trade.Shares,
		"credits":     trade.Credits,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("trade", trade.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade executed",
		slog.String("trade", trade.ID),
		slog.String("market", trade.MarketID),
		slog.String("participant", trade.Participant),
		slog.String("side", string(trade.Side)),
	)
}

// poolsFor returns the (own, other) pool sizes for the side being traded.
func poolsFor(m domain.Market, outcome domain.Outcome) (float64, float64) {
	if outcome == domain.OutcomeYes {
		return m.YesPool, m.NoPool
	}
	return m.NoPool, m.YesPool
}
