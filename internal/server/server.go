// Package server exposes the node's HTTP and WebSocket API: chain reads and
// writes, integrity checks, gossip mesh endpoints, and prediction markets.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
	"github.com/kitchain/kitchain/internal/server/handler"
	"github.com/kitchain/kitchain/internal/server/middleware"
	"github.com/kitchain/kitchain/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Chain   *handler.ChainHandler
	Audit   *handler.AuditHandler
	Peers   *handler.PeerHandler
	Markets *handler.MarketHandler
}

// Server is the node's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limiting, auth) applied.
// limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Chain endpoints.
	mux.HandleFunc("POST /api/chain/records", handlers.Chain.AppendRecord)
	mux.HandleFunc("GET /api/chain", handlers.Chain.GetChain)
	mux.HandleFunc("GET /api/chain/latest", handlers.Chain.GetLatest)
	mux.HandleFunc("GET /api/chain/history/{subjectId}", handlers.Chain.GetHistory)
	mux.HandleFunc("POST /api/chain/rollback", handlers.Chain.Rollback)

	// Integrity and audit endpoints.
	mux.HandleFunc("GET /api/chain/verify", handlers.Audit.Verify)
	mux.HandleFunc("GET /api/chain/tamper", handlers.Audit.TamperScan)
	mux.HandleFunc("POST /api/chain/snapshot", handlers.Audit.Snapshot)
	mux.HandleFunc("GET /api/chain/snapshots", handlers.Audit.Snapshots)
	mux.HandleFunc("GET /api/audit/events", handlers.Audit.Events)

	// Gossip mesh endpoints, also called by peer nodes.
	mux.HandleFunc("POST /api/peers/register", handlers.Peers.Register)
	mux.HandleFunc("POST /api/peers/receive", handlers.Peers.Receive)
	mux.HandleFunc("GET /api/peers", handlers.Peers.List)

	// Prediction market endpoints.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/probabilities", handlers.Markets.Probabilities)
	mux.HandleFunc("POST /api/markets/{id}/buy", handlers.Markets.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Markets.Sell)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.Resolve)
	mux.HandleFunc("POST /api/participants", handlers.Markets.Join)
	mux.HandleFunc("GET /api/participants/{id}", handlers.Markets.Position)
	mux.HandleFunc("GET /api/leaderboard", handlers.Markets.Leaderboard)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain. Peer nodes carry no API key, so the
	// gossip routes and health check are exempt from auth.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, peerFacing)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// peerFacing reports whether a request targets a route that other nodes (or
// load balancer probes) call without credentials: the gossip mesh endpoints,
// the chain export used for sync, and the health check.
func peerFacing(r *http.Request) bool {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/peers/"):
		return true
	case r.Method == http.MethodGet && r.URL.Path == "/api/chain":
		return true
	case r.URL.Path == "/api/health":
		return true
	}
	return false
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
