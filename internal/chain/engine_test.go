package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/store/memory"
)

func testEngine() *Engine {
	return NewEngine(memory.NewBlockStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRecord(subjectID, location string) domain.CustodyRecord {
	return domain.CustodyRecord{
		SubjectID:      subjectID,
		Classification: "trauma-kit",
		Origin:         "warehouse-7",
		Location:       location,
		TemperatureC:   4.5,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Signature:      "deadbeef",
	}
}

func appendN(t *testing.T, e *Engine, n int) []domain.Block {
	t.Helper()
	blocks := make([]domain.Block, 0, n)
	for i := 0; i < n; i++ {
		b, err := e.AppendRecord(context.Background(), testRecord("KIT-001", "depot"))
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	return blocks
}

func TestAppendRecordLinksBlocks(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 5)

	assert.Equal(t, int64(0), blocks[0].Index)
	assert.Equal(t, domain.GenesisPreviousHash, blocks[0].PreviousHash)

	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Index+1, blocks[i].Index)
		assert.Equal(t, blocks[i-1].Hash, blocks[i].PreviousHash)
	}

	assert.True(t, e.VerifyChain(blocks))
}

func TestComputeHashDeterministic(t *testing.T) {
	rec := testRecord("KIT-001", "depot")
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h1, err := ComputeHash(3, ts, rec, domain.GenesisPreviousHash)
	require.NoError(t, err)
	h2, err := ComputeHash(3, ts, rec, domain.GenesisPreviousHash)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Any single field change must produce a different digest.
	rec.Location = "field-hospital"
	h3, err := ComputeHash(3, ts, rec, domain.GenesisPreviousHash)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerifyChainDetectsMutation(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 3)

	blocks[1].Data.Location = "tampered"
	assert.False(t, e.VerifyChain(blocks))
}

func TestDetectTamperingReportsExactBlock(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 3)

	blocks[1].Data.Location = "tampered"

	reports := e.DetectTampering(blocks)
	require.Len(t, reports, 1)
	assert.Equal(t, int64(1), reports[0].Index)
}

func TestDetectTamperingCleanChain(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 4)
	assert.Empty(t, e.DetectTampering(blocks))
}

func TestDetectTamperingBrokenLink(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 3)

	// Re-hash block 2 with a forged previousHash: its own hash is then
	// consistent but the link to block 1 is broken.
	blocks[2].PreviousHash = domain.GenesisPreviousHash
	h, err := ComputeHash(blocks[2].Index, blocks[2].Timestamp, blocks[2].Data, blocks[2].PreviousHash)
	require.NoError(t, err)
	blocks[2].Hash = h

	reports := e.DetectTampering(blocks)
	require.Len(t, reports, 1)
	assert.Equal(t, int64(2), reports[0].Index)
	assert.Contains(t, reports[0].Reason, "previousHash")
}

func TestReplaceChainLongerWins(t *testing.T) {
	local := testEngine()
	appendN(t, local, 3)

	remote := testEngine()
	candidate := appendN(t, remote, 5)

	accepted, err := local.ReplaceChain(context.Background(), candidate)
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := local.GetFullChain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}

func TestReplaceChainShorterRejected(t *testing.T) {
	local := testEngine()
	localChain := appendN(t, local, 3)

	remote := testEngine()
	candidate := appendN(t, remote, 2)

	accepted, err := local.ReplaceChain(context.Background(), candidate)
	require.NoError(t, err)
	assert.False(t, accepted)

	got, err := local.GetFullChain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, localChain, got)
}

func TestReplaceChainInvalidCandidateRejected(t *testing.T) {
	local := testEngine()
	appendN(t, local, 2)

	remote := testEngine()
	candidate := appendN(t, remote, 4)
	candidate[2].Data.Origin = "forged"

	accepted, err := local.ReplaceChain(context.Background(), candidate)
	require.NoError(t, err)
	assert.False(t, accepted)

	length, err := local.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestSaveReceivedBlockIdempotent(t *testing.T) {
	remote := testEngine()
	blocks := appendN(t, remote, 2)

	local := testEngine()
	_, err := local.AppendRecord(context.Background(), blocks[0].Data)
	require.NoError(t, err)

	// First receipt of a new head block.
	accepted, err := local.SaveReceivedBlock(context.Background(), blocks[1])
	require.NoError(t, err)
	assert.True(t, accepted)

	// Byte-identical duplicate is a no-op accept.
	accepted, err = local.SaveReceivedBlock(context.Background(), blocks[1])
	require.NoError(t, err)
	assert.True(t, accepted)

	length, err := local.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestSaveReceivedBlockConflict(t *testing.T) {
	local := testEngine()
	appendN(t, local, 2)

	remote := testEngine()
	remoteBlocks := appendN(t, remote, 2)
	remoteBlocks[1].Data.Location = "elsewhere"
	h, err := ComputeHash(remoteBlocks[1].Index, remoteBlocks[1].Timestamp, remoteBlocks[1].Data, remoteBlocks[1].PreviousHash)
	require.NoError(t, err)
	remoteBlocks[1].Hash = h

	accepted, err := local.SaveReceivedBlock(context.Background(), remoteBlocks[1])
	assert.False(t, accepted)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSaveReceivedBlockBadHashRejected(t *testing.T) {
	local := testEngine()

	b := domain.Block{
		Index:        0,
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		Data:         testRecord("KIT-002", "depot"),
		PreviousHash: domain.GenesisPreviousHash,
		Hash:         "not-a-real-digest",
	}

	accepted, err := local.SaveReceivedBlock(context.Background(), b)
	assert.False(t, accepted)
	assert.True(t, errors.Is(err, domain.ErrIntegrity))
}

func TestGetHistoryOrderedBySubject(t *testing.T) {
	e := testEngine()

	_, err := e.AppendRecord(context.Background(), testRecord("KIT-A", "A"))
	require.NoError(t, err)
	_, err = e.AppendRecord(context.Background(), testRecord("KIT-B", "X"))
	require.NoError(t, err)

	update := testRecord("KIT-A", "B")
	update.LastUpdatedBy = "nurse-12"
	update.LastUpdatedRole = "nurse"
	_, err = e.AppendRecord(context.Background(), update)
	require.NoError(t, err)

	history, err := e.GetHistory(context.Background(), "KIT-A")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "A", history[0].Data.Location)
	assert.Equal(t, "B", history[1].Data.Location)
}

func TestRollbackLatest(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 3)

	removed, err := e.RollbackLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blocks[2].Index, removed.Index)

	length, err := e.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestBlockWireFormatRoundTrip(t *testing.T) {
	e := testEngine()
	blocks := appendN(t, e, 1)

	// The wire encoding must survive a round trip with the hash still valid:
	// peers recompute digests from decoded blocks.
	data, err := CanonicalData(blocks[0].Data)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	recomputed, err := ComputeHash(blocks[0].Index, blocks[0].Timestamp, blocks[0].Data, blocks[0].PreviousHash)
	require.NoError(t, err)
	assert.Equal(t, blocks[0].Hash, recomputed)
}
