package market

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchain/kitchain/internal/domain"
)

func newTestEngine(t *testing.T) (*Engine, domain.Market) {
	t.Helper()
	e := NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m, err := e.Create("mkt-1", "Will KIT-001 reach the field hospital by Friday?",
		"KIT-001", time.Now().Add(72*time.Hour), "dispatch")
	require.NoError(t, err)
	return e, m
}

func TestCreateSeedsEqualPools(t *testing.T) {
	_, m := newTestEngine(t)

	assert.Equal(t, domain.InitialPoolCredits, m.YesPool)
	assert.Equal(t, domain.InitialPoolCredits, m.NoPool)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Nil(t, m.WinningOutcome)
}

func TestCreateDuplicateRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Create("mkt-1", "dup", "KIT-001", time.Now(), "dispatch")
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
}

func TestPriceAtBalancedPools(t *testing.T) {
	// 200 shares at 1000/1000 cost exactly 200.00.
	assert.Equal(t, 200.00, Price(1000, 1000, 200))
}

func TestPriceRoundsToTwoDecimals(t *testing.T) {
	// 100 * (1000/300) = 333.333... -> 333.33
	assert.Equal(t, 333.33, Price(300, 1000, 100))
}

func TestBuyMovesPoolAndVolume(t *testing.T) {
	e, _ := newTestEngine(t)

	cost, err := e.Buy("mkt-1", domain.OutcomeYes, 200)
	require.NoError(t, err)
	assert.Equal(t, 200.00, cost)

	m, err := e.Get("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, 800.0, m.YesPool)
	assert.Equal(t, 1000.0, m.NoPool)
	assert.Equal(t, 200.00, m.TotalVolume)
}

func TestBuyRaisesImpliedProbability(t *testing.T) {
	e, _ := newTestEngine(t)

	before, err := e.Probabilities("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, 50, before.Yes)
	assert.Equal(t, 50, before.No)

	_, err = e.Buy("mkt-1", domain.OutcomeYes, 200)
	require.NoError(t, err)

	after, err := e.Probabilities("mkt-1")
	require.NoError(t, err)
	// YES pool shrank, so NO/(YES+NO) grew: buying YES raises YES%.
	assert.Greater(t, after.Yes, before.Yes)
	assert.Equal(t, 100, after.Yes+after.No)
}

func TestBuyInsufficientLiquidity(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Buy("mkt-1", domain.OutcomeNo, 1000)
	assert.True(t, errors.Is(err, domain.ErrInsufficientLiquidity))

	// Rejected trade must not mutate the pools.
	m, err := e.Get("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, m.NoPool)
	assert.Equal(t, 0.0, m.TotalVolume)
}

func TestSellReturnsSharesToPool(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Buy("mkt-1", domain.OutcomeYes, 200)
	require.NoError(t, err)

	payout, err := e.Sell("mkt-1", domain.OutcomeYes, 100)
	require.NoError(t, err)
	// Pre-trade snapshot: 100 * (1000/800) = 125.00
	assert.Equal(t, 125.00, payout)

	m, err := e.Get("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, 900.0, m.YesPool)
}

func TestResolveTerminal(t *testing.T) {
	e, _ := newTestEngine(t)

	m, err := e.Resolve("mkt-1", domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, domain.OutcomeYes, *m.WinningOutcome)

	// Resolution is irreversible and trades on a resolved market fail.
	_, err = e.Resolve("mkt-1", domain.OutcomeNo)
	assert.True(t, errors.Is(err, domain.ErrMarketResolved))
	_, err = e.Buy("mkt-1", domain.OutcomeYes, 10)
	assert.True(t, errors.Is(err, domain.ErrMarketResolved))
	_, err = e.Sell("mkt-1", domain.OutcomeNo, 10)
	assert.True(t, errors.Is(err, domain.ErrMarketResolved))
}

func TestInvalidTradeParams(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Buy("mkt-1", domain.Outcome("MAYBE"), 10)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = e.Buy("mkt-1", domain.OutcomeYes, -5)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = e.Buy("missing", domain.OutcomeYes, 10)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
