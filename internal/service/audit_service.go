package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kitchain/kitchain/internal/chain"
	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/notify"
)

// AuditService runs integrity checks over the local chain and exposes the
// audit trail. Tamper findings go out through the signal bus, the audit log
// and operator notifications.
type AuditService struct {
	engine   *chain.Engine
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAuditService creates an AuditService.
func NewAuditService(
	engine *chain.Engine,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *AuditService {
	return &AuditService{
		engine:   engine,
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "audit_service")),
	}
}

// VerifyChain walks the full local chain and reports whether every block
// hash and link is intact.
func (s *AuditService) VerifyChain(ctx context.Context) (bool, error) {
	blocks, err := s.engine.GetFullChain(ctx)
	if err != nil {
		return false, fmt.Errorf("audit_service: load chain: %w", err)
	}

	valid := s.engine.VerifyChain(blocks)

	if auditErr := s.audit.Log(ctx, "chain_verified", map[string]any{
		"valid":  valid,
		"length": len(blocks),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	return valid, nil
}

// TamperScan walks the full chain without short-circuiting and returns one
// report per compromised block. A non-empty result raises a tamper alert.
func (s *AuditService) TamperScan(ctx context.Context) ([]domain.TamperReport, error) {
	blocks, err := s.engine.GetFullChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit_service: load chain: %w", err)
	}

	reports := s.engine.DetectTampering(blocks)
	if len(reports) == 0 {
		return nil, nil
	}

	s.logger.WarnContext(ctx, "tampering detected",
		slog.Int("blocks", len(reports)),
	)

	evt, _ := json.Marshal(map[string]any{
		"event":   "tamper_detected",
		"reports": reports,
	})
	if pubErr := s.bus.Publish(ctx, "chain.tamper", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "tamper_detected", map[string]any{
		"blocks": len(reports),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	if s.notifier != nil {
		var indexes []string
		for _, r := range reports {
			indexes = append(indexes, fmt.Sprintf("#%d (%s)", r.Index, r.Reason))
		}
		if err := s.notifier.Notify(ctx, notify.EventTamperDetected,
			"Chain tampering detected",
			fmt.Sprintf("%d block(s) failed integrity checks: %s", len(reports), strings.Join(indexes, ", ")),
		); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return reports, nil
}

// RecentEvents returns the newest audit log entries, up to limit.
func (s *AuditService) RecentEvents(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	entries, err := s.audit.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: list events: %w", err)
	}
	return entries, nil
}
