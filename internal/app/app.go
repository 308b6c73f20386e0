// Package app provides the top-level application lifecycle of the swing
// trading bot. It wires together stores, caches, market data, services and
// the HTTP server, and runs them according to the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   closerStack
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run wires all dependencies, selects the operating mode and blocks until
// the mode finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	svc, err := a.start(ctx)
	if err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "live":
		return a.LiveMode(ctx, svc)
	case "server":
		return a.ServerMode(ctx, svc)
	case "once":
		_, err := a.OnceMode(ctx, svc)
		return err
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	a.closers.run()
}

// services are the live-mode collaborators built over Dependencies.
type services struct {
	deps      *Dependencies
	engine    *engine.Engine
	pool      *feed.Pool
	settings  *service.SettingsService
	scan      *service.ScanService
	risk      *service.RiskService
	trade     *service.TradeService
	portfolio *service.PortfolioService
}

// start wires dependencies, seeds settings and builds the services.
func (a *App) start(ctx context.Context) (*services, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers.push(cleanup)

	svc, err := a.buildServices(deps)
	if err != nil {
		return nil, err
	}
	if err := svc.settings.Seed(ctx, a.cfg.Trading.Settings()); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.logger.InfoContext(ctx, "dependencies ready",
		slog.Int("universe", len(deps.Universe)),
		slog.Bool("s3", deps.Reports != nil),
		slog.Bool("rate_limited", deps.RateLimiter != nil),
	)
	return svc, nil
}

func (a *App) buildServices(deps *Dependencies) (*services, error) {
	var clock service.MarketClock
	loc := marketLocation()
	if a.cfg.MarketHours.Enabled {
		mh, err := NewMarketHours(a.cfg.MarketHours.Sessions)
		if err != nil {
			return nil, err
		}
		clock = mh
		if l := mh.Location(); l != nil {
			loc = l
		}
	}

	eng := engine.New(deps.Ledger, deps.Notifier, a.logger)
	pool := newPool(a.cfg, deps.MarketData, a.logger)
	settings := service.NewSettingsService(deps.SettingsStore, deps.AuditStore, a.logger)
	scan := service.NewScanService(pool, deps.PriceCache, deps.ScanResults, deps.ReportArchiver(),
		deps.SignalBus, a.cfg.Scanner.LookbackDays, a.logger)
	risk := service.NewRiskService(pool, a.cfg.Scanner.RegimeIndex, a.cfg.Scanner.RegimeLookbackDays, a.logger)

	trade := service.NewTradeService(service.TradeDeps{
		Engine:   eng,
		Settings: settings,
		Scanner:  scan,
		Risk:     risk,
		Pool:     pool,
		Quotes:   deps.Quotes,
		Prices:   deps.PriceCache,
		Results:  deps.ScanResults,
		Equity:   deps.EquityStore,
		Locks:    deps.LockManager,
		Bus:      deps.SignalBus,
		Notifier: deps.Notifier,
		Clock:    clock,
	}, service.TradeConfig{
		Symbols:           deps.Universe,
		TrailLookbackDays: a.cfg.Scanner.TrailLookbackDays,
		Location:          loc,
	}, a.logger)

	pf := service.NewPortfolioService(service.PortfolioDeps{
		Engine:        eng,
		Settings:      settings,
		Prices:        deps.PriceCache,
		Equity:        deps.EquityStore,
		Results:       deps.ScanResults,
		Notifications: deps.Notifications,
		Audit:         deps.AuditStore,
	}, a.cfg.Trading.StartingCash, a.logger)

	return &services{
		deps:      deps,
		engine:    eng,
		pool:      pool,
		settings:  settings,
		scan:      scan,
		risk:      risk,
		trade:     trade,
		portfolio: pf,
	}, nil
}
