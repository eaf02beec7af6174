// Package app provides top-level lifecycle management for the ledger node.
// It wires stores, caches, blob storage, the chain and market engines, the
// gossip layer and the HTTP server, then runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/kitchain/kitchain/internal/blob/s3"
	"github.com/kitchain/kitchain/internal/chain"
	"github.com/kitchain/kitchain/internal/config"
	"github.com/kitchain/kitchain/internal/gossip"
	"github.com/kitchain/kitchain/internal/market"
	"github.com/kitchain/kitchain/internal/positions"
	"github.com/kitchain/kitchain/internal/server"
	"github.com/kitchain/kitchain/internal/server/handler"
	"github.com/kitchain/kitchain/internal/server/ws"
	"github.com/kitchain/kitchain/internal/service"
)

// shutdownGrace bounds how long in-flight HTTP requests may run during
// shutdown.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, performs the
// startup peer sync, starts the WebSocket hub and HTTP server, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting node",
		slog.String("mode", a.cfg.Mode),
		slog.String("name", a.cfg.Node.Name),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// --- Engines ---
	chainEngine := chain.NewEngine(deps.BlockStore, a.logger)
	marketEngine := market.NewEngine(a.logger)
	positionLedger := positions.NewLedger(a.logger)

	// --- Gossip layer ---
	registry := gossip.NewRegistry(a.cfg.Gossip.SelfAddress)
	gossipClient := gossip.NewClient(a.cfg.Gossip.PushTimeout.Duration)
	gossipLayer := gossip.NewLayer(chainEngine, registry, gossipClient, a.cfg.Gossip.PushTimeout.Duration, a.logger)

	// --- Services ---
	chainSvc := service.NewChainService(
		chainEngine, gossipLayer, deps.Signer, deps.HeadCache,
		deps.SignalBus, deps.AuditStore, deps.Notifier, a.logger,
	)
	auditSvc := service.NewAuditService(
		chainEngine, deps.AuditStore, deps.SignalBus, deps.Notifier, a.logger,
	)
	marketSvc := service.NewMarketService(
		marketEngine, positionLedger, deps.SignalBus, deps.AuditStore, deps.Notifier, a.logger,
	)

	var archiver *s3blob.Archiver
	if deps.BlobWriter != nil {
		archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, chainEngine, deps.AuditStore)
	}

	// --- Startup sync against configured peers ---
	chainSvc.SyncOnStartup(ctx, a.cfg.Gossip.Peers, a.cfg.Gossip.SelfAddress)

	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server disabled, idling until shutdown")
		<-ctx.Done()
		return ctx.Err()
	}

	// --- WebSocket hub ---
	hub := ws.NewHub(deps.SignalBus, a.cfg.Node.Name, a.logger)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("ws hub stopped", slog.String("error", err.Error()))
		}
	}()

	// --- HTTP server ---
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(chainEngine, a.logger),
		Chain:   handler.NewChainHandler(chainSvc, a.logger),
		Audit:   newAuditHandler(auditSvc, archiver, a.logger),
		Peers:   handler.NewPeerHandler(chainSvc, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// newAuditHandler keeps the nil-archiver case out of the wiring above; a nil
// *s3blob.Archiver must become a nil interface, not a typed nil.
func newAuditHandler(auditSvc *service.AuditService, archiver *s3blob.Archiver, logger *slog.Logger) *handler.AuditHandler {
	if archiver == nil {
		return handler.NewAuditHandler(auditSvc, nil, logger)
	}
	return handler.NewAuditHandler(auditSvc, archiver, logger)
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down node")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
