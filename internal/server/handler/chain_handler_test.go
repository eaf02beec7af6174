package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchain/kitchain/internal/domain"
)

type stubChainService struct {
	appendFn   func(context.Context, domain.CustodyRecord) (domain.Block, error)
	chainFn    func(context.Context) ([]domain.Block, error)
	latestFn   func(context.Context) (domain.Block, error)
	historyFn  func(context.Context, string) ([]domain.Block, error)
	rollbackFn func(context.Context) (domain.Block, error)
}

func (s *stubChainService) AppendRecord(ctx context.Context, r domain.CustodyRecord) (domain.Block, error) {
	return s.appendFn(ctx, r)
}

func (s *stubChainService) GetChain(ctx context.Context) ([]domain.Block, error) {
	return s.chainFn(ctx)
}

func (s *stubChainService) GetLatest(ctx context.Context) (domain.Block, error) {
	return s.latestFn(ctx)
}

func (s *stubChainService) GetHistory(ctx context.Context, subjectID string) ([]domain.Block, error) {
	return s.historyFn(ctx, subjectID)
}

func (s *stubChainService) RollbackLatest(ctx context.Context) (domain.Block, error) {
	return s.rollbackFn(ctx)
}

func chainMux(svc ChainService) *http.ServeMux {
	h := NewChainHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chain/records", h.AppendRecord)
	mux.HandleFunc("GET /api/chain", h.GetChain)
	mux.HandleFunc("GET /api/chain/latest", h.GetLatest)
	mux.HandleFunc("GET /api/chain/history/{subjectId}", h.GetHistory)
	mux.HandleFunc("POST /api/chain/rollback", h.Rollback)
	return mux
}

func TestAppendRecordCreated(t *testing.T) {
	svc := &stubChainService{
		appendFn: func(_ context.Context, r domain.CustodyRecord) (domain.Block, error) {
			return domain.Block{Index: 3, Data: r, Hash: "h3"}, nil
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodPost, "/api/chain/records", map[string]any{
		"subjectId":      "KIT-042",
		"classification": "field-surgical",
		"origin":         "depot-east",
		"location":       "ambulance-12",
		"temperatureC":   5.5,
		"createdAt":      "2026-04-02T09:30:00Z",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var block domain.Block
	decodeBody(t, rec, &block)
	assert.Equal(t, int64(3), block.Index)
	assert.Equal(t, "KIT-042", block.Data.SubjectID)
}

func TestAppendRecordErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("bad record: %w", domain.ErrValidation), http.StatusUnprocessableEntity},
		{"unauthorized", fmt.Errorf("no key: %w", domain.ErrUnauthorized), http.StatusForbidden},
		{"signing", fmt.Errorf("hsm down: %w", domain.ErrSigningFailed), http.StatusForbidden},
		{"internal", fmt.Errorf("store offline"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubChainService{
				appendFn: func(context.Context, domain.CustodyRecord) (domain.Block, error) {
					return domain.Block{}, tc.err
				},
			}
			rec := doRequest(t, chainMux(svc), http.MethodPost, "/api/chain/records", map[string]any{
				"subjectId": "KIT-042",
			})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAppendRecordRejectsMalformedBody(t *testing.T) {
	svc := &stubChainService{
		appendFn: func(context.Context, domain.CustodyRecord) (domain.Block, error) {
			t.Fatal("service must not be called")
			return domain.Block{}, nil
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodPost, "/api/chain/records", map[string]any{
		"subjectId": "KIT-042",
		"bogus":     true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChainWireShape(t *testing.T) {
	svc := &stubChainService{
		chainFn: func(context.Context) ([]domain.Block, error) {
			return []domain.Block{{Index: 0, Hash: "h0"}, {Index: 1, Hash: "h1"}}, nil
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodGet, "/api/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Chain  []domain.Block `json:"chain"`
		Length int            `json:"length"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Length)
	require.Len(t, body.Chain, 2)
	assert.Equal(t, "h1", body.Chain[1].Hash)
}

func TestGetLatestEmptyChain(t *testing.T) {
	svc := &stubChainService{
		latestFn: func(context.Context) (domain.Block, error) {
			return domain.Block{}, domain.ErrNotFound
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodGet, "/api/chain/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistoryPassesSubject(t *testing.T) {
	var got string
	svc := &stubChainService{
		historyFn: func(_ context.Context, subjectID string) ([]domain.Block, error) {
			got = subjectID
			return nil, nil
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodGet, "/api/chain/history/KIT-042", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KIT-042", got)
}

func TestRollbackEmptyChainConflicts(t *testing.T) {
	svc := &stubChainService{
		rollbackFn: func(context.Context) (domain.Block, error) {
			return domain.Block{}, domain.ErrNotFound
		},
	}

	rec := doRequest(t, chainMux(svc), http.MethodPost, "/api/chain/rollback", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
