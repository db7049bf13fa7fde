package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/neuraltrade/tradecore/internal/engine"
	"github.com/neuraltrade/tradecore/internal/ledger"
	"github.com/neuraltrade/tradecore/internal/policy"
	"github.com/neuraltrade/tradecore/internal/rebalance"
	"github.com/neuraltrade/tradecore/internal/server"
	"github.com/neuraltrade/tradecore/internal/server/handler"
	"github.com/neuraltrade/tradecore/internal/server/ws"
)

// services bundles the core domain services built on top of the wired
// dependencies.
type services struct {
	admin     *engine.Admin
	ledger    *ledger.Ledger
	policy    *policy.Service
	engine    *engine.Engine
	rebalance *rebalance.Service
}

// buildServices constructs the ledger, policy, admin, engine, and rebalance
// services and seeds the per-strategy policy defaults.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	owner := common.HexToAddress(a.cfg.Admin.Owner)
	approved := parseAddresses(a.cfg.Admin.ApprovedTokens)
	authorized := parseAddresses(a.cfg.Admin.AuthorizedCallers)

	led := ledger.New(deps.Positions, deps.Bus, deps.Audit, a.logger)
	pol := policy.New(deps.Policies, deps.Audit, owner, a.logger)
	if err := pol.Seed(ctx); err != nil {
		return nil, fmt.Errorf("app: seed policy defaults: %w", err)
	}
	adm := engine.NewAdmin(owner, approved, authorized, a.cfg.Admin.StartPaused, deps.Audit, a.logger)
	eng := engine.New(
		led, pol, deps.Limiter, deps.Locker,
		deps.Trades, deps.Intents, deps.Prices, deps.Bus, deps.Audit,
		adm, a.logger,
	)
	reb := rebalance.New(
		deps.Portfolios, deps.Positions, deps.Prices, eng,
		common.HexToAddress(a.cfg.Rebalance.QuoteToken),
		a.cfg.Rebalance.DriftThresholdBps,
		a.logger,
	)

	return &services{
		admin:     adm,
		ledger:    led,
		policy:    pol,
		engine:    eng,
		rebalance: reb,
	}, nil
}

func parseAddresses(hexes []string) []common.Address {
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		out = append(out, common.HexToAddress(h))
	}
	return out
}

// ServerMode runs the HTTP and WebSocket API against persistent stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svc)
	return g.Wait()
}

// StandaloneMode runs the same API as ServerMode on in-memory stores. Wire
// selects the memory backends when the mode is standalone, so the only
// difference here is intent.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode, state will not survive restarts")

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svc)
	return g.Wait()
}

// RebalanceMode runs only the scheduled portfolio rebalancer.
func (a *App) RebalanceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting rebalance mode",
		slog.Duration("check_interval", a.cfg.Rebalance.CheckInterval.Duration),
	)

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startRebalanceLoop(ctx, g, svc)
	return g.Wait()
}

// ArchiveMode runs only the periodic trade/audit archival sweep.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Duration("interval", a.cfg.Archive.Interval.Duration),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server, the scheduled rebalancer, and, when enabled,
// the archival sweep in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svc, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svc)
	a.startRebalanceLoop(ctx, g, svc)
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}
	return g.Wait()
}

// startServer registers the route handlers, starts the WebSocket hub, and
// adds the HTTP server goroutines to the group. The server shuts down
// gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, API not started")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Health, a.logger),
		Trades:     handler.NewTradeHandler(svc.engine, deps.Trades, a.logger),
		Positions:  handler.NewPositionHandler(svc.ledger, svc.engine, deps.Positions, a.logger),
		Portfolios: handler.NewPortfolioHandler(svc.rebalance, a.logger),
		Intents:    handler.NewIntentHandler(svc.engine, a.logger),
		Admin:      handler.NewAdminHandler(svc.policy, svc.admin, deps.PricePoster, deps.Audit, a.logger),
		Metrics:    handler.NewMetricsHandler(deps.Trades, svc.ledger, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIToken:      deps.APIToken,
		RequestLimit:  a.cfg.Server.RequestLimit,
		RequestWindow: a.cfg.Server.RequestWindow.Duration,
	}, handlers, hub, deps.Requests, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startRebalanceLoop sweeps due portfolios on the configured interval.
func (a *App) startRebalanceLoop(ctx context.Context, g *errgroup.Group, svc *services) {
	interval := a.cfg.Rebalance.CheckInterval.Duration

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				ran, err := svc.rebalance.RunDue(ctx)
				if err != nil {
					a.logger.ErrorContext(ctx, "rebalance sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if ran > 0 {
					a.logger.InfoContext(ctx, "rebalance sweep complete",
						slog.Int("portfolios", ran),
					)
				}
			}
		}
	})
}

// startArchiveLoop sweeps old trades and audit entries to object storage on
// the configured interval.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := deps.Archiver.Sweep(ctx, time.Now().UTC(), retention); err != nil {
					a.logger.ErrorContext(ctx, "archive sweep failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}
