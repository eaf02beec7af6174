package positions

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchain/kitchain/internal/domain"
)

func newTestLedger() *Ledger {
	return NewLedger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInitializeParticipantIdempotent(t *testing.T) {
	l := newTestLedger()

	l.InitializeParticipant("alice", 1000)
	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 100, 100))

	// Re-initialization must not reset the balance.
	l.InitializeParticipant("alice", 1000)
	assert.Equal(t, 900.0, l.Summary("alice").Credits)
}

func TestRecordBuyDebitsAndHolds(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)

	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 200, 200))

	s := l.Summary("alice")
	assert.Equal(t, 800.0, s.Credits)
	assert.Equal(t, 200.0, s.Holdings["mkt-1"].Yes)
	assert.Equal(t, 1, s.Stats.TotalTrades)
	assert.Equal(t, -200.0, s.Stats.Profit)
}

func TestRecordBuyInsufficientCredits(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("bob", 50)

	err := l.RecordBuy("bob", "mkt-1", domain.OutcomeNo, 100, 100)
	assert.True(t, errors.Is(err, domain.ErrInsufficientCredits))

	// A rejected buy leaves the account untouched.
	s := l.Summary("bob")
	assert.Equal(t, 50.0, s.Credits)
	assert.Empty(t, s.Holdings)
	assert.Equal(t, 0, s.Stats.TotalTrades)
}

func TestRecordSellRequiresHoldings(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)
	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 100, 100))

	err := l.RecordSell("alice", "mkt-1", domain.OutcomeYes, 150, 150)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))

	err = l.RecordSell("alice", "mkt-1", domain.OutcomeNo, 10, 10)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))

	require.NoError(t, l.RecordSell("alice", "mkt-1", domain.OutcomeYes, 60, 75))
	s := l.Summary("alice")
	assert.Equal(t, 975.0, s.Credits)
	assert.Equal(t, 40.0, s.Holdings["mkt-1"].Yes)
}

func TestResolvePositionSettlesBothSides(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)
	l.InitializeParticipant("bob", 1000)

	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 200, 200))
	require.NoError(t, l.RecordBuy("bob", "mkt-1", domain.OutcomeNo, 300, 300))

	l.ResolvePosition("alice", "mkt-1", domain.OutcomeYes)
	l.ResolvePosition("bob", "mkt-1", domain.OutcomeYes)

	alice := l.Summary("alice")
	assert.Equal(t, 1, alice.Stats.CorrectPredictions)
	assert.Equal(t, 1, alice.Stats.TotalPredictions)
	assert.NotContains(t, alice.Holdings, "mkt-1")

	bob := l.Summary("bob")
	assert.Equal(t, 0, bob.Stats.CorrectPredictions)
	assert.Equal(t, 1, bob.Stats.TotalPredictions)
	assert.NotContains(t, bob.Holdings, "mkt-1")
}

func TestResolvePositionIdempotent(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)
	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 200, 200))

	l.ResolvePosition("alice", "mkt-1", domain.OutcomeYes)
	first := l.Summary("alice")

	// Second settlement finds cleared holdings and changes nothing.
	l.ResolvePosition("alice", "mkt-1", domain.OutcomeYes)
	assert.Equal(t, first, l.Summary("alice"))
}

func TestWinningSharesPayOut(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)
	require.NoError(t, l.RecordBuy("alice", "mkt-1", domain.OutcomeYes, 200, 200))

	l.ResolvePosition("alice", "mkt-1", domain.OutcomeYes)

	s := l.Summary("alice")
	// 800 after the buy, plus one credit per winning share.
	assert.Equal(t, 1000.0, s.Credits)
	assert.Equal(t, 0.0, s.Stats.Profit)
}

func TestLeaderboardOrdering(t *testing.T) {
	l := newTestLedger()
	l.InitializeParticipant("alice", 1000)
	l.InitializeParticipant("bob", 1000)
	l.InitializeParticipant("carol", 1000)

	// alice: 1/1 correct, breaks even. bob: 0/1. carol: 1/1 but paid a
	// premium, so the accuracy tie breaks on profit.
	require.NoError(t, l.RecordBuy("alice", "m1", domain.OutcomeYes, 300, 300))
	require.NoError(t, l.RecordBuy("bob", "m1", domain.OutcomeNo, 100, 100))
	require.NoError(t, l.RecordBuy("carol", "m1", domain.OutcomeYes, 100, 120))

	l.ResolvePosition("alice", "m1", domain.OutcomeYes)
	l.ResolvePosition("bob", "m1", domain.OutcomeYes)
	l.ResolvePosition("carol", "m1", domain.OutcomeYes)

	board := l.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, "alice", board[0].Participant) // accuracy 1.0, profit 0
	assert.Equal(t, "carol", board[1].Participant) // accuracy 1.0, profit -20
	assert.Equal(t, "bob", board[2].Participant)   // accuracy 0
}
