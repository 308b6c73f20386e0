package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swingbot/internal/backtest"
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/indicator"
	"github.com/alanyoungcy/swingbot/internal/risk"
)

// cycleLockKey serializes live trade cycles across processes.
const cycleLockKey = "trade-cycle"

// MarketClock reports whether any tracked exchange session is open.
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// TradeConfig tunes the live cycle.
type TradeConfig struct {
	Symbols           []string
	TrailLookbackDays int
	LockTTL           time.Duration
	// Location defines the trading day used for the daily-loss window and
	// equity snapshot dates.
	Location *time.Location
}

// TradeDeps are the collaborators of a TradeService. Clock, Quotes and Bus
// may be nil.
type TradeDeps struct {
	Engine   *engine.Engine
	Settings *SettingsService
	Scanner  *ScanService
	Risk     *RiskService
	Pool     *feed.Pool
	Quotes   domain.QuoteProvider
	Prices   domain.PriceCache
	Results  domain.ScanResultStore
	Equity   domain.EquityStore
	Locks    domain.LockManager
	Bus      domain.SignalBus
	Notifier domain.Notifier
	Clock    MarketClock
}

// CycleReport describes one live cycle.
type CycleReport struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Skipped    string                `json:"skipped,omitempty"`
	MarketOpen bool                  `json:"market_open"`
	Regime     domain.RegimeReading  `json:"regime"`
	Breaker    risk.Breaker          `json:"breaker"`
	Scanned    int                   `json:"scanned"`
	Signals    int                   `json:"signals"`
	Bought     int                   `json:"bought"`
	Actions    []string              `json:"actions,omitempty"`
	Equity     domain.EquitySnapshot `json:"equity"`
}

// TradeService runs the live decision cycle: scan, gate, buy, trail, exit
// and snapshot.
type TradeService struct {
	deps   TradeDeps
	cfg    TradeConfig
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *CycleReport
}

// NewTradeService creates a TradeService.
func NewTradeService(deps TradeDeps, cfg TradeConfig, logger *slog.Logger) *TradeService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.TrailLookbackDays <= 0 {
		cfg.TrailLookbackDays = backtest.TrailLookbackDays
	}
	return &TradeService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "trade_service")),
		now:    time.Now,
	}
}

// LastCycle returns the report of the most recent completed cycle, or nil.
func (s *TradeService) LastCycle() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RunCycle executes one live cycle. A cycle already running elsewhere is
// reported as skipped, not as an error.
func (s *TradeService) RunCycle(ctx context.Context) (CycleReport, error) {
	unlock, err := s.deps.Locks.Acquire(ctx, cycleLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.InfoContext(ctx, "cycle skipped, lock held")
			return CycleReport{StartedAt: s.now(), Skipped: "cycle already running"}, nil
		}
		return CycleReport{}, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	rep, err := s.runCycle(ctx)
	rep.FinishedAt = s.now()
	if err != nil {
		s.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		return rep, err
	}
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep, nil
}

func (s *TradeService) runCycle(ctx context.Context) (CycleReport, error) {
	now := s.now()
	rep := CycleReport{StartedAt: now, MarketOpen: true}

	settings, err := s.deps.Settings.Load(ctx)
	if err != nil {
		return rep, err
	}

	if s.deps.Clock != nil && !s.deps.Clock.IsOpen(now) {
		rep.MarketOpen = false
		rep.Skipped = "market closed"
		marks, err := s.openMarks(ctx, domain.PriceSnapshot{})
		if err != nil {
			return rep, err
		}
		rep.Equity, err = s.recordEquity(ctx, marks, now)
		return rep, err
	}

	rep.Regime = s.deps.Risk.Regime(ctx)

	scan, err := s.deps.Scanner.Scan(ctx, s.cfg.Symbols)
	if err != nil {
		return rep, err
	}
	rep.Scanned = scan.Scanned
	rep.Signals = len(scan.Signals)

	marks, err := s.openMarks(ctx, scan.Prices)
	if err != nil {
		return rep, err
	}

	dayStart, dayEnd := localDay(now, s.cfg.Location)
	rep.Breaker, err = s.deps.Engine.CheckBreaker(ctx, settings, marks, dayStart, dayEnd)
	if err != nil {
		return rep, err
	}

	canBuy := settings.AutoTrade
	if rep.Breaker.Tripped {
		canBuy = false
		s.emit(ctx, domain.LevelWarning, "Circuit breaker tripped: "+rep.Breaker.Reason)
	}
	if rep.Regime.BlocksEntries() {
		canBuy = false
		s.emit(ctx, domain.LevelWarning, "Bear market regime detected, auto-trade paused")
	}

	if canBuy && len(scan.Signals) > 0 {
		entries, err := s.deps.Engine.EnterAll(ctx, scan.Signals, settings, marks, now)
		for _, e := range entries {
			rep.Actions = append(rep.Actions, fmt.Sprintf("Bought %s @ $%.2f (score %d)", e.Position.Symbol, e.Position.EntryPrice, e.Signal.Confidence))
			if e.Index < len(scan.Results) {
				if merr := s.deps.Results.MarkAutoTraded(ctx, scan.Results[e.Index].ID, e.Position.ID); merr != nil {
					s.logger.WarnContext(ctx, "mark auto-traded failed",
						slog.String("symbol", e.Position.Symbol),
						slog.String("error", merr.Error()),
					)
				}
			}
		}
		rep.Bought = len(entries)
		if err != nil {
			return rep, err
		}
	}

	prices, err := s.refreshOpenPrices(ctx, marks)
	if err != nil {
		return rep, err
	}

	if settings.TrailingStopEnabled {
		actions, err := s.deps.Engine.UpdateTrailingStops(ctx, s.trailLevels(ctx, now))
		rep.Actions = append(rep.Actions, actions...)
		if err != nil {
			return rep, err
		}
	}

	actions, err := s.deps.Engine.CheckExits(ctx, prices, settings.Commission, now)
	rep.Actions = append(rep.Actions, actions...)
	if err != nil {
		return rep, err
	}

	rep.Equity, err = s.recordEquity(ctx, prices, now)
	if err != nil {
		return rep, err
	}

	s.logger.InfoContext(ctx, "cycle complete",
		slog.String("regime", string(rep.Regime.Regime)),
		slog.Bool("breaker_tripped", rep.Breaker.Tripped),
		slog.Int("signals", rep.Signals),
		slog.Int("bought", rep.Bought),
		slog.Int("actions", len(rep.Actions)),
		slog.Float64("total_equity", rep.Equity.TotalEquity),
	)
	return rep, nil
}

// openMarks returns base extended with cached prices for open symbols it
// does not cover.
func (s *TradeService) openMarks(ctx context.Context, base domain.PriceSnapshot) (domain.PriceSnapshot, error) {
	open, err := s.deps.Engine.Ledger().ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list open: %w", err)
	}
	marks := make(domain.PriceSnapshot, len(base)+len(open))
	for k, v := range base {
		marks[k] = v
	}
	var missing []string
	for _, p := range open {
		if !marks.Has(p.Symbol) {
			missing = append(missing, p.Symbol)
		}
	}
	if len(missing) == 0 {
		return marks, nil
	}
	cached, err := s.deps.Prices.GetPrices(ctx, missing)
	if err != nil {
		s.logger.WarnContext(ctx, "cached prices unavailable", slog.String("error", err.Error()))
		return marks, nil
	}
	for k, v := range cached {
		marks[k] = v
	}
	return marks, nil
}

// refreshOpenPrices asks the quote provider for the latest trade of every
// open symbol. Failures fall back to the price already in marks.
func (s *TradeService) refreshOpenPrices(ctx context.Context, marks domain.PriceSnapshot) (domain.PriceSnapshot, error) {
	open, err := s.deps.Engine.Ledger().ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list open: %w", err)
	}
	prices := make(domain.PriceSnapshot, len(marks))
	for k, v := range marks {
		prices[k] = v
	}
	if s.deps.Quotes == nil {
		return prices, nil
	}
	now := s.now()
	for _, p := range open {
		px, err := s.deps.Quotes.LatestPrice(ctx, p.Symbol)
		if err != nil || px <= 0 {
			if err != nil {
				s.logger.WarnContext(ctx, "latest price failed, using cached",
					slog.String("symbol", p.Symbol),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		prices[p.Symbol] = px
		if err := s.deps.Prices.SetPrice(ctx, p.Symbol, px, now); err != nil {
			s.logger.WarnContext(ctx, "cache price failed", slog.String("symbol", p.Symbol), slog.String("error", err.Error()))
		}
	}
	return prices, nil
}

// trailLevels computes the latest EMA8 of every open position that has
// taken target 1. Symbols without enough history are left out.
func (s *TradeService) trailLevels(ctx context.Context, now time.Time) map[string]float64 {
	open, err := s.deps.Engine.Ledger().ListOpen(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "trail: list open failed", slog.String("error", err.Error()))
		return nil
	}
	var symbols []string
	for _, p := range open {
		if p.Target1Hit {
			symbols = append(symbols, p.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil
	}
	levels := make(map[string]float64, len(symbols))
	start := now.AddDate(0, 0, -s.cfg.TrailLookbackDays)
	for _, res := range s.deps.Pool.FetchAll(ctx, symbols, start, now) {
		if res.Err != nil || res.Series.Len() <= backtest.MinTrailBars {
			continue
		}
		ema := indicator.EMA(res.Series.Closes(), 8)
		levels[res.Symbol] = ema[len(ema)-1]
	}
	return levels
}

func (s *TradeService) recordEquity(ctx context.Context, prices domain.PriceSnapshot, now time.Time) (domain.EquitySnapshot, error) {
	snap, err := s.deps.Engine.Snapshot(ctx, prices, domain.TradingDay(now, s.cfg.Location))
	if err != nil {
		return snap, err
	}
	if err := s.deps.Equity.Upsert(ctx, snap); err != nil {
		return snap, fmt.Errorf("trade_service: save equity snapshot: %w", err)
	}
	if s.deps.Bus != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := s.deps.Bus.Publish(ctx, domain.ChannelEquity, payload); err != nil {
				s.logger.WarnContext(ctx, "publish equity failed", slog.String("error", err.Error()))
			}
		}
	}
	return snap, nil
}

// localDay returns the bounds of t's calendar day in loc.
func localDay(t time.Time, loc *time.Location) (start, end time.Time) {
	y, m, d := t.In(loc).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *TradeService) emit(ctx context.Context, level, msg string) {
	if level == domain.LevelWarning {
		s.logger.WarnContext(ctx, msg)
	} else {
		s.logger.InfoContext(ctx, msg)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Emit(ctx, level, msg)
	}
}
