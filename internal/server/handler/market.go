package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, question, subjectID string, deadline time.Time, createdBy string) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context) []domain.Market
	Probabilities(ctx context.Context, marketID string) (domain.Probabilities, error)
	Buy(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error)
	Sell(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error)
	Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (domain.Market, error)
	Join(ctx context.Context, participant string)
	Position(ctx context.Context, participant string) domain.ParticipantSummary
	Leaderboard(ctx context.Context) []domain.LeaderboardEntry
}

// MarketHandler serves prediction-market HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type createMarketRequest struct {
	Question  string    `json:"question"`
	SubjectID string    `json:"subjectId"`
	Deadline  time.Time `json:"deadline"`
	CreatedBy string    `json:"createdBy"`
}

// CreateMarket opens a new YES/NO market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid market payload")
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), req.Question, req.SubjectID, req.Deadline, req.CreatedBy)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets returns all markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.ListMarkets(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Probabilities returns the implied YES/NO percentages.
// GET /api/markets/{id}/probabilities
func (h *MarketHandler) Probabilities(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	p, err := h.markets.Probabilities(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: probabilities failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute probabilities")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

type tradeRequest struct {
	Participant string  `json:"participant"`
	Outcome     string  `json:"outcome"`
	Shares      float64 `json:"shares"`
}

func (req tradeRequest) validate() (domain.Outcome, string) {
	if req.Participant == "" {
		return "", "missing participant"
	}
	outcome := domain.Outcome(req.Outcome)
	if !outcome.Valid() {
		return "", "outcome must be YES or NO"
	}
	if req.Shares <= 0 {
		return "", "shares must be positive"
	}
	return outcome, ""
}

// Buy purchases shares in a market.
// POST /api/markets/{id}/buy
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.markets.Buy)
}

// Sell liquidates shares in a market.
// POST /api/markets/{id}/sell
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.markets.Sell)
}

func (h *MarketHandler) trade(
	w http.ResponseWriter,
	r *http.Request,
	exec func(ctx context.Context, participant, marketID string, outcome domain.Outcome, shares float64) (domain.MarketTrade, error),
) {
	id := pathParam(r, "id")

	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade payload")
		return
	}
	outcome, problem := req.validate()
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	trade, err := exec(r.Context(), req.Participant, id, outcome, req.Shares)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		case errors.Is(err, domain.ErrInsufficientLiquidity),
			errors.Is(err, domain.ErrInsufficientShares),
			errors.Is(err, domain.ErrInsufficientCredits):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: trade failed",
				slog.String("market_id", id),
				slog.String("participant", req.Participant),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "trade failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve settles a market on the winning outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid resolve payload")
		return
	}
	outcome := domain.Outcome(req.Outcome)
	if !outcome.Valid() {
		writeError(w, http.StatusBadRequest, "outcome must be YES or NO")
		return
	}

	m, err := h.markets.Resolve(r.Context(), id, outcome)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve market")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type joinRequest struct {
	Participant string `json:"participant"`
}

// Join registers a participant with the standard starting balance.
// POST /api/participants
func (h *MarketHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid join payload")
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	h.markets.Join(r.Context(), req.Participant)
	writeJSON(w, http.StatusCreated, h.markets.Position(r.Context(), req.Participant))
}

// Position returns a participant's balance, holdings and stats.
// GET /api/participants/{id}
func (h *MarketHandler) Position(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing participant id")
		return
	}

	writeJSON(w, http.StatusOK, h.markets.Position(r.Context(), id))
}

// Leaderboard ranks participants by prediction accuracy.
// GET /api/leaderboard
func (h *MarketHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries := h.markets.Leaderboard(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
	})
}
