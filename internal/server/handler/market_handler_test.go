package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchain/kitchain/internal/domain"
)

type stubMarketService struct {
	createFn      func(context.Context, string, string, time.Time, string) (domain.Market, error)
	getFn         func(context.Context, string) (domain.Market, error)
	listFn        func(context.Context) []domain.Market
	probsFn       func(context.Context, string) (domain.Probabilities, error)
	buyFn         func(context.Context, string, string, domain.Outcome, float64) (domain.MarketTrade, error)
	sellFn        func(context.Context, string, string, domain.Outcome, float64) (domain.MarketTrade, error)
	resolveFn     func(context.Context, string, domain.Outcome) (domain.Market, error)
	joined        []string
	positionFn    func(context.Context, string) domain.ParticipantSummary
	leaderboardFn func(context.Context) []domain.LeaderboardEntry
}

func (s *stubMarketService) CreateMarket(ctx context.Context, question, subjectID string, deadline time.Time, createdBy string) (domain.Market, error) {
	return s.createFn(ctx, question, subjectID, deadline, createdBy)
}

func (s *stubMarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.getFn(ctx, id)
}

func (s *stubMarketService) ListMarkets(ctx context.Context) []domain.Market {
	return s.listFn(ctx)
}

func (s *stubMarketService) Probabilities(ctx context.Context, marketID string) (domain.Probabilities, error) {
	return s.probsFn(ctx, marketID)
}

func (s *stubMarketService) Buy(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error) {
	return s.buyFn(ctx, participant, marketID, outcome, shares)
}

func (s *stubMarketService) Sell(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error) {
	return s.sellFn(ctx, participant, marketID, outcome, shares)
}

func (s *stubMarketService) Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (domain.Market, error) {
	return s.resolveFn(ctx, marketID, outcome)
}

func (s *stubMarketService) Join(_ context.Context, participant string) {
	s.joined = append(s.joined, participant)
}

func (s *stubMarketService) Position(ctx context.Context, participant string) domain.ParticipantSummary {
	if s.positionFn == nil {
		return domain.ParticipantSummary{Participant: participant, Credits: domain.StartingCredits}
	}
	return s.positionFn(ctx, participant)
}

func (s *stubMarketService) Leaderboard(ctx context.Context) []domain.LeaderboardEntry {
	return s.leaderboardFn(ctx)
}

func marketMux(svc MarketService) *http.ServeMux {
	h := NewMarketHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/probabilities", h.Probabilities)
	mux.HandleFunc("POST /api/markets/{id}/buy", h.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", h.Sell)
	mux.HandleFunc("POST /api/markets/{id}/resolve", h.Resolve)
	mux.HandleFunc("POST /api/participants", h.Join)
	mux.HandleFunc("GET /api/participants/{id}", h.Position)
	mux.HandleFunc("GET /api/leaderboard", h.Leaderboard)
	return mux
}

func TestCreateMarketCreated(t *testing.T) {
	svc := &stubMarketService{
		createFn: func(_ context.Context, question, subjectID string, _ time.Time, createdBy string) (domain.Market, error) {
			return domain.Market{ID: "m1", Question: question, SubjectID: subjectID, CreatedBy: createdBy}, nil
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/markets", map[string]any{
		"question":  "Will kit K-17 stay below 8C through transit?",
		"subjectId": "K-17",
		"deadline":  "2026-09-01T00:00:00Z",
		"createdBy": "ops",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var m domain.Market
	decodeBody(t, rec, &m)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "K-17", m.SubjectID)
}

func TestBuyPassesPathAndBody(t *testing.T) {
	var gotMarket, gotParticipant string
	var gotShares float64
	svc := &stubMarketService{
		buyFn: func(_ context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error) {
			gotMarket, gotParticipant, gotShares = marketID, participant, shares
			return domain.MarketTrade{ID: "t1", Side: domain.TradeSideBuy, Outcome: outcome}, nil
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/markets/m1/buy", tradeRequest{
		Participant: "alice",
		Outcome:     "YES",
		Shares:      25,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "m1", gotMarket)
	assert.Equal(t, "alice", gotParticipant)
	assert.Equal(t, 25.0, gotShares)
}

func TestTradeErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown market", fmt.Errorf("market m1: %w", domain.ErrNotFound), http.StatusNotFound},
		{"resolved", fmt.Errorf("market m1: %w", domain.ErrMarketResolved), http.StatusConflict},
		{"liquidity", fmt.Errorf("market m1: %w", domain.ErrInsufficientLiquidity), http.StatusUnprocessableEntity},
		{"shares", fmt.Errorf("market m1: %w", domain.ErrInsufficientShares), http.StatusUnprocessableEntity},
		{"credits", fmt.Errorf("market m1: %w", domain.ErrInsufficientCredits), http.StatusUnprocessableEntity},
		{"internal", fmt.Errorf("ledger offline"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubMarketService{
				sellFn: func(context.Context, string, string, domain.Outcome, float64) (domain.MarketTrade, error) {
					return domain.MarketTrade{}, tc.err
				},
			}
			rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/markets/m1/sell", tradeRequest{
				Participant: "alice",
				Outcome:     "NO",
				Shares:      5,
			})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestTradeRejectsBadOutcome(t *testing.T) {
	svc := &stubMarketService{
		buyFn: func(context.Context, string, string, domain.Outcome, float64) (domain.MarketTrade, error) {
			t.Fatal("service must not be called")
			return domain.MarketTrade{}, nil
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/markets/m1/buy", tradeRequest{
		Participant: "alice",
		Outcome:     "MAYBE",
		Shares:      5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveConflictWhenAlreadyResolved(t *testing.T) {
	svc := &stubMarketService{
		resolveFn: func(context.Context, string, domain.Outcome) (domain.Market, error) {
			return domain.Market{}, fmt.Errorf("market m1: %w", domain.ErrMarketResolved)
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/markets/m1/resolve",
		map[string]string{"outcome": "YES"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJoinReturnsStartingPosition(t *testing.T) {
	svc := &stubMarketService{}

	rec := doRequest(t, marketMux(svc), http.MethodPost, "/api/participants",
		map[string]string{"participant": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"alice"}, svc.joined)

	var summary domain.ParticipantSummary
	decodeBody(t, rec, &summary)
	assert.Equal(t, "alice", summary.Participant)
	assert.Equal(t, domain.StartingCredits, summary.Credits)
}

func TestProbabilitiesUnknownMarket(t *testing.T) {
	svc := &stubMarketService{
		probsFn: func(context.Context, string) (domain.Probabilities, error) {
			return domain.Probabilities{}, fmt.Errorf("market nope: %w", domain.ErrNotFound)
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodGet, "/api/markets/nope/probabilities", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardWireShape(t *testing.T) {
	svc := &stubMarketService{
		leaderboardFn: func(context.Context) []domain.LeaderboardEntry {
			return []domain.LeaderboardEntry{
				{Participant: "alice", Accuracy: 1.0},
				{Participant: "bob", Accuracy: 0.5},
			}
		},
	}

	rec := doRequest(t, marketMux(svc), http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Leaderboard, 2)
	assert.Equal(t, "alice", body.Leaderboard[0].Participant)
}
