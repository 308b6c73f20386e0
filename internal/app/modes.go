package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swingbot/internal/backtest"
	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/server"
	"github.com/alanyoungcy/swingbot/internal/server/handler"
	"github.com/alanyoungcy/swingbot/internal/server/ws"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// minCycleInterval guards against a zero or negative stored interval.
const minCycleInterval = time.Minute

// LiveMode runs trade cycles on the stored scan interval and, when enabled,
// the HTTP server.
func (a *App) LiveMode(ctx context.Context, svc *services) error {
	a.logger.InfoContext(ctx, "starting live mode",
		slog.Int("universe", len(svc.deps.Universe)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.schedule(ctx, svc)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, svc)
	}
	return ignoreCanceled(g.Wait())
}

// ServerMode serves the API and dashboard stream without running cycles.
func (a *App) ServerMode(ctx context.Context, svc *services) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, svc)
	return ignoreCanceled(g.Wait())
}

// OnceMode runs a single trade cycle and returns its report.
func (a *App) OnceMode(ctx context.Context, svc *services) (service.CycleReport, error) {
	a.logger.InfoContext(ctx, "running single cycle")
	rep, err := svc.trade.RunCycle(ctx)
	if err != nil {
		return rep, fmt.Errorf("app: cycle: %w", err)
	}
	return rep, nil
}

// schedule runs a cycle immediately and then every scan_interval_minutes.
// The interval is re-read after each cycle so a settings change applies to
// the next wait.
func (a *App) schedule(ctx context.Context, svc *services) error {
	for {
		if _, err := svc.trade.RunCycle(ctx); err != nil && ctx.Err() == nil {
			// The cycle already logged the failure; the next one retries.
			a.logger.WarnContext(ctx, "cycle failed, waiting for next interval")
		}

		wait := minCycleInterval
		if s, err := svc.settings.Load(ctx); err == nil {
			wait = max(wait, time.Duration(s.ScanIntervalMinutes)*time.Minute)
		}
		a.logger.InfoContext(ctx, "next cycle scheduled", slog.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Scan runs one batch scan over symbols, or the universe when symbols is
// empty, without trading.
func (a *App) Scan(ctx context.Context, symbols []string) (service.ScanReport, error) {
	svc, err := a.start(ctx)
	if err != nil {
		return service.ScanReport{}, err
	}
	if len(symbols) == 0 {
		symbols = svc.deps.Universe
	}
	return svc.scan.Scan(ctx, symbols)
}

// RunOnce wires dependencies and runs a single trade cycle.
func (a *App) RunOnce(ctx context.Context) (service.CycleReport, error) {
	svc, err := a.start(ctx)
	if err != nil {
		return service.CycleReport{}, err
	}
	return a.OnceMode(ctx, svc)
}

// BacktestOptions selects the replay range and universe.
type BacktestOptions struct {
	Start        time.Time
	End          time.Time
	Symbols      []string
	StartingCash float64
	Archive      bool
	RiskGate     bool
}

// BacktestRun is a finished replay and where its report was archived.
type BacktestRun struct {
	RunID       string
	Result      backtest.Result
	ArchivePath string
	Failed      []string
}

// Backtest downloads bars through the fetch pool and replays them. It needs
// market data only; Postgres is not touched.
func (a *App) Backtest(ctx context.Context, opts BacktestOptions) (BacktestRun, error) {
	md, cleanup, err := WireMarketData(ctx, a.cfg, a.logger)
	if err != nil {
		return BacktestRun{}, fmt.Errorf("app: wire market data: %w", err)
	}
	a.closers.push(cleanup)

	symbols := opts.Symbols
	if len(symbols) == 0 {
		if symbols, err = config.LoadUniverse(a.cfg.Universe, a.logger); err != nil {
			return BacktestRun{}, fmt.Errorf("app: %w", err)
		}
	}

	cash := opts.StartingCash
	if cash <= 0 {
		cash = a.cfg.Backtest.StartingCash
	}
	if cash <= 0 {
		cash = a.cfg.Trading.StartingCash
	}

	bcfg := backtest.Config{
		Start:        opts.Start,
		End:          opts.End,
		StartingCash: cash,
		Settings:     a.cfg.Trading.Settings(),
		WarmupDays:   a.cfg.Backtest.WarmupDays,
		RiskGate:     opts.RiskGate,
	}
	from, to := bcfg.FetchWindow()

	run := BacktestRun{RunID: uuid.NewString()}
	pool := newPool(a.cfg, md, a.logger)
	var series []domain.BarSeries
	for _, res := range pool.FetchAll(ctx, symbols, from, to) {
		if res.Err != nil {
			run.Failed = append(run.Failed, res.Symbol)
			continue
		}
		series = append(series, res.Series)
	}
	a.logger.InfoContext(ctx, "backtest bars downloaded",
		slog.String("run_id", run.RunID),
		slog.Int("symbols", len(symbols)),
		slog.Int("fetched", len(series)),
		slog.Int("failed", len(run.Failed)),
	)

	run.Result, err = backtest.Run(ctx, bcfg, series, a.logger)
	if err != nil {
		return run, err
	}

	if opts.Archive {
		if md.Reports == nil {
			a.logger.WarnContext(ctx, "archive requested but s3 is disabled")
		} else if run.ArchivePath, err = md.Reports.ArchiveBacktest(ctx, run.RunID, run.Result); err != nil {
			return run, fmt.Errorf("app: archive report: %w", err)
		}
	}
	return run, nil
}

// ListReports lists archived backtest reports.
func (a *App) ListReports(ctx context.Context) ([]domain.BlobInfo, error) {
	md, cleanup, err := WireMarketData(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire market data: %w", err)
	}
	a.closers.push(cleanup)
	if md.Reports == nil {
		return nil, errors.New("app: s3 is disabled")
	}
	return md.Reports.ListBacktests(ctx)
}

// startHTTPServer registers the API, the WebSocket hub and their shutdown on g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, svc *services) {
	deps := svc.deps

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
		Status: func(ctx context.Context) map[string]any {
			sum, err := svc.portfolio.Summary(ctx)
			if err != nil {
				return nil
			}
			return map[string]any{
				"open_positions": sum.OpenPositions,
				"total_equity":   sum.TotalEquity,
				"regime":         svc.risk.Last().Regime,
			}
		},
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var cycles handler.CycleSource
	if a.cfg.Mode == "live" {
		cycles = svc.trade
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.startedAt, len(deps.Universe), cycles, svc.risk),
		Portfolio: handler.NewPortfolioHandler(svc.portfolio, a.logger),
		Scanner:   handler.NewScannerHandler(svc.scan, deps.Universe, a.logger),
		Settings:  handler.NewSettingsHandler(svc.settings, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
