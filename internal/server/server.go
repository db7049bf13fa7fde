// Package server exposes the trading core over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/neuraltrade/tradecore/internal/server/handler"
	"github.com/neuraltrade/tradecore/internal/server/middleware"
	"github.com/neuraltrade/tradecore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIToken    string // if empty, authentication is disabled

	// RequestLimit caps requests per client IP per RequestWindow. Applied
	// only when a limiter backend is supplied to NewServer.
	RequestLimit  int
	RequestWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Trades     *handler.TradeHandler
	Positions  *handler.PositionHandler
	Portfolios *handler.PortfolioHandler
	Intents    *handler.IntentHandler
	Admin      *handler.AdminHandler
	Metrics    *handler.MetricsHandler
}

// Server is the headless HTTP + WebSocket API for the trading core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (logging, CORS, auth, optional rate limiting) applied.
// limiter may be nil to disable per-IP rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter middleware.RequestLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required; see middleware.Auth exemption).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Trade execution and trade log.
	mux.HandleFunc("POST /api/trades", handlers.Trades.ExecuteTrade)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/trades/{id}", handlers.Trades.GetTrade)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)
	mux.HandleFunc("GET /api/positions/value", handlers.Positions.PortfolioValue)
	mux.HandleFunc("POST /api/positions/close", handlers.Positions.ClosePosition)

	// Portfolios and rebalancing.
	mux.HandleFunc("POST /api/portfolios", handlers.Portfolios.CreatePortfolio)
	mux.HandleFunc("GET /api/portfolios", handlers.Portfolios.ListPortfolios)
	mux.HandleFunc("GET /api/portfolios/{id}", handlers.Portfolios.GetPortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}/recommendations", handlers.Portfolios.Recommendations)
	mux.HandleFunc("POST /api/portfolios/{id}/rebalance", handlers.Portfolios.Rebalance)

	// Scheduled strategy intents.
	mux.HandleFunc("POST /api/strategies/grid", handlers.Intents.ExecuteGrid)
	mux.HandleFunc("POST /api/strategies/dca", handlers.Intents.ExecuteDCA)
	mux.HandleFunc("GET /api/strategies/intents", handlers.Intents.ListIntents)
	mux.HandleFunc("DELETE /api/strategies/intents/{id}", handlers.Intents.CancelIntent)

	// Performance metrics.
	mux.HandleFunc("GET /api/metrics", handlers.Metrics.GetMetrics)

	// Owner control plane.
	mux.HandleFunc("PUT /api/admin/strategy-config", handlers.Admin.SetStrategyConfig)
	mux.HandleFunc("GET /api/admin/strategy-config", handlers.Admin.ListStrategyConfigs)
	mux.HandleFunc("PUT /api/admin/account-override", handlers.Admin.SetAccountOverride)
	mux.HandleFunc("PUT /api/admin/pause", handlers.Admin.SetPause)
	mux.HandleFunc("PUT /api/admin/approved-tokens", handlers.Admin.SetTokenApproval)
	mux.HandleFunc("GET /api/admin/approved-tokens", handlers.Admin.ListApprovedTokens)
	mux.HandleFunc("PUT /api/admin/authorized-callers", handlers.Admin.SetCallerAuthorization)
	mux.HandleFunc("POST /api/admin/prices", handlers.Admin.PostPrice)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)

	// WebSocket stream of decision/trade/position events.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIToken)(h)
	if limiter != nil && cfg.RequestLimit > 0 && cfg.RequestWindow > 0 {
		h = middleware.RateLimit(limiter, cfg.RequestLimit, cfg.RequestWindow)(h)
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
