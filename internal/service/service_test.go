package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type barsBySymbol struct {
	mu     sync.Mutex
	series map[string]domain.BarSeries
	calls  int
}

func (b *barsBySymbol) FetchBars(_ context.Context, symbol string, _, _ time.Time) (domain.BarSeries, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	s, ok := b.series[symbol]
	if !ok {
		return domain.BarSeries{}, errors.New("unknown symbol")
	}
	return s, nil
}

type quotes map[string]float64

func (q quotes) LatestPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := q[symbol]; ok {
		return p, nil
	}
	return 0, domain.ErrNotFound
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Emit(_ context.Context, level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+": "+msg)
}

func (r *recorder) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

type clockFunc func(time.Time) bool

func (f clockFunc) IsOpen(t time.Time) bool { return f(t) }

// linear builds n daily bars ending on testNow's date with closes moving
// by step per bar from first.
func linear(symbol string, n int, first, step float64) domain.BarSeries {
	s := domain.BarSeries{Symbol: symbol}
	start := domain.TradingDay(testNow, time.UTC).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		c := first + step*float64(i)
		s.Bars = append(s.Bars, domain.Bar{
			Date: start.AddDate(0, 0, i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1e6,
		})
	}
	return s
}

type harness struct {
	bars     *barsBySymbol
	ledger   *memory.Ledger
	settings *SettingsService
	results  *memory.ScanResultStore
	equity   *memory.EquityStore
	prices   *memory.PriceCache
	locks    *memory.LockManager
	bus      *memory.Bus
	notes    *recorder
	engine   *engine.Engine
	trade    *TradeService
	folio    *PortfolioService
	audit    *memory.AuditStore
}

func newHarness(t *testing.T, q quotes, clock MarketClock) *harness {
	t.Helper()
	h := &harness{
		bars:    &barsBySymbol{series: map[string]domain.BarSeries{}},
		ledger:  memory.NewLedger(150000),
		results: memory.NewScanResultStore(),
		equity:  memory.NewEquityStore(),
		prices:  memory.NewPriceCache(),
		locks:   memory.NewLockManager(),
		bus:     memory.NewBus(100),
		notes:   &recorder{},
		audit:   memory.NewAuditStore(),
	}
	h.settings = NewSettingsService(memory.NewSettingsStore(), h.audit, quiet)
	h.engine = engine.New(h.ledger, h.notes, quiet)

	pool := feed.NewPool(h.bars, nil, feed.PoolConfig{
		Concurrency: 2, Timeout: time.Second, MaxAttempts: 1, Backoff: time.Millisecond,
	}, quiet)
	scanner := NewScanService(pool, h.prices, h.results, nil, h.bus, 365, quiet)
	scanner.now = func() time.Time { return testNow }
	riskSvc := NewRiskService(pool, "SPY", 365, quiet)
	riskSvc.now = func() time.Time { return testNow }

	var qp domain.QuoteProvider
	if q != nil {
		qp = q
	}
	h.trade = NewTradeService(TradeDeps{
		Engine:   h.engine,
		Settings: h.settings,
		Scanner:  scanner,
		Risk:     riskSvc,
		Pool:     pool,
		Quotes:   qp,
		Prices:   h.prices,
		Results:  h.results,
		Equity:   h.equity,
		Locks:    h.locks,
		Bus:      h.bus,
		Notifier: h.notes,
		Clock:    clock,
	}, TradeConfig{Symbols: []string{"AAA"}}, quiet)
	h.trade.now = func() time.Time { return testNow }

	h.folio = NewPortfolioService(PortfolioDeps{
		Engine:        h.engine,
		Settings:      h.settings,
		Prices:        h.prices,
		Equity:        h.equity,
		Results:       h.results,
		Notifications: memory.NewNotificationStore(),
		Audit:         h.audit,
	}, 150000, quiet)
	h.folio.now = func() time.Time { return testNow }
	return h
}

func TestSettingsServiceLoadAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingsStore()
	audit := memory.NewAuditStore()
	svc := NewSettingsService(store, audit, quiet)

	if err := svc.Seed(ctx, domain.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	_ = store.Set(ctx, domain.SettingRiskPct, "lots")
	_ = store.Set(ctx, domain.SettingMaxPositions, "4")

	s, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if s.RiskPct != 0.02 || s.MaxPositions != 4 {
		t.Fatalf("Load() = %+v, want risk default and stored max_positions", s)
	}

	_, err = svc.Update(ctx, map[string]string{"min_signal_score": "50", "nope": "1"})
	if !errors.Is(err, domain.ErrInvalidSetting) {
		t.Fatalf("Update(unknown key) = %v, want ErrInvalidSetting", err)
	}
	if v, _ := store.Get(ctx, domain.SettingMinSignalScore); v != "30" {
		t.Fatalf("rejected update was partially applied: min_signal_score=%q", v)
	}

	s, err = svc.Update(ctx, map[string]string{"min_signal_score": "50", "auto_trade": "false"})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if s.MinSignalScore != 50 || s.AutoTrade {
		t.Fatalf("Update() = %+v", s)
	}
	entries, _ := audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "settings_updated" {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestScanCachesPricesAndCountsFailures(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.bars.series["AAA"] = linear("AAA", 80, 50, 0.1)
	scanner := h.trade.deps.Scanner

	rep, err := scanner.Scan(context.Background(), []string{"AAA", "MISSING"})
	if err != nil {
		t.Fatalf("Scan() = %v", err)
	}
	if rep.Scanned != 1 || rep.Failed != 1 {
		t.Fatalf("scanned=%d failed=%d", rep.Scanned, rep.Failed)
	}
	px, _, err := h.prices.GetPrice(context.Background(), "AAA")
	if err != nil || px != rep.Prices["AAA"] {
		t.Fatalf("cached price = %v, %v; snapshot %v", px, err, rep.Prices["AAA"])
	}
	if len(rep.Results) != len(rep.Signals) {
		t.Fatalf("results %d != signals %d", len(rep.Results), len(rep.Signals))
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t, nil, nil)
	unlock, err := h.locks.Acquire(context.Background(), cycleLockKey, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	rep, err := h.trade.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() = %v", err)
	}
	if rep.Skipped == "" || h.bars.calls != 0 {
		t.Fatalf("cycle ran under a held lock: %+v calls=%d", rep, h.bars.calls)
	}
}

func TestRunCycleMarketClosedOnlySnapshots(t *testing.T) {
	h := newHarness(t, nil, clockFunc(func(time.Time) bool { return false }))

	rep, err := h.trade.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() = %v", err)
	}
	if rep.MarketOpen || h.bars.calls != 0 {
		t.Fatalf("closed market still scanned: %+v calls=%d", rep, h.bars.calls)
	}
	curve, _ := h.equity.List(context.Background())
	if len(curve) != 1 || curve[0].TotalEquity != 150000 {
		t.Fatalf("equity curve = %+v", curve)
	}
}

func TestRunCycleBearRegimeStillManagesExits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, quotes{"AAA": 111}, clockFunc(func(time.Time) bool { return true }))
	h.bars.series["AAA"] = linear("AAA", 80, 100, 0)
	h.bars.series["SPY"] = linear("SPY", 260, 500, -1)

	pos, err := h.engine.EnterManual(ctx, portfolio.ManualEntry{
		Symbol: "AAA", Price: 100, Stop: 95, Target1: 105, Target2: 110, Shares: 100,
	}, domain.DefaultSettings(), nil, testNow.Add(-48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	rep, err := h.trade.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() = %v", err)
	}
	if rep.Regime.Regime != domain.RegimeBear {
		t.Fatalf("regime = %s, want BEAR", rep.Regime.Regime)
	}
	if !h.notes.contains("Bear market regime detected, auto-trade paused") {
		t.Fatalf("missing bear notification: %v", h.notes.lines)
	}
	if rep.Bought != 0 {
		t.Fatalf("bought %d under a bear regime", rep.Bought)
	}

	got, err := h.ledger.GetPosition(ctx, pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsOpen() || got.CloseReason != domain.ReasonTarget2 {
		t.Fatalf("position = %+v, want closed at target 2", got)
	}
	if len(rep.Actions) != 2 {
		t.Fatalf("actions = %v, want T1 gap fill then T2", rep.Actions)
	}
	if px, _, _ := h.prices.GetPrice(ctx, "AAA"); px != 111 {
		t.Fatalf("refreshed price not cached: %v", px)
	}
	if last := h.trade.LastCycle(); last == nil || last.Equity.TotalEquity != rep.Equity.TotalEquity {
		t.Fatal("LastCycle not recorded")
	}
}

func TestRunCycleBreakerBlocksBuys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.bars.series["AAA"] = linear("AAA", 80, 80, 0)

	_, err := h.engine.EnterManual(ctx, portfolio.ManualEntry{
		Symbol: "AAA", Price: 100, Stop: 70, Target1: 120, Target2: 140, Shares: 1000,
	}, domain.DefaultSettings(), nil, testNow.Add(-48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	rep, err := h.trade.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() = %v", err)
	}
	if !rep.Breaker.Tripped {
		t.Fatalf("breaker = %+v, want tripped", rep.Breaker)
	}
	if !h.notes.contains("Circuit breaker tripped: ") {
		t.Fatalf("missing breaker notification: %v", h.notes.lines)
	}
	if rep.Regime.Regime != domain.RegimeUnknown {
		t.Fatalf("regime = %s, want UNKNOWN when the index fetch fails", rep.Regime.Regime)
	}
}

func TestPortfolioManualLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	if _, err := h.folio.Buy(ctx, portfolio.ManualEntry{Symbol: "AAA", Price: 100, Stop: 101, Target1: 110, Target2: 120, Shares: 10}); !errors.Is(err, domain.ErrInvalidLevels) {
		t.Fatalf("Buy(stop above price) = %v, want ErrInvalidLevels", err)
	}

	pos, err := h.folio.Buy(ctx, portfolio.ManualEntry{Symbol: "AAA", Price: 100, Stop: 95, Target1: 110, Target2: 120, Shares: 40})
	if err != nil {
		t.Fatalf("Buy() = %v", err)
	}
	_ = h.prices.SetPrice(ctx, "AAA", 104, testNow)

	sum, err := h.folio.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Cash != 150000-4000-10 || sum.PositionsValue != 4160 || sum.UnrealizedPnL != 160 {
		t.Fatalf("summary = %+v", sum)
	}

	views, err := h.folio.OpenPositions(ctx)
	if err != nil || len(views) != 1 || views[0].CurrentPrice != 104 || views[0].PnLPct != 4 {
		t.Fatalf("open views = %+v, %v", views, err)
	}

	next, err := h.folio.Close(ctx, pos.ID, CloseRequest{Shares: 10, Price: 110, Reason: domain.ReasonTarget1})
	if err != nil {
		t.Fatalf("Close(partial) = %v", err)
	}
	if next.Shares != 30 || next.StopPrice < next.EntryPrice {
		t.Fatalf("after partial = %+v, want 30 shares and breakeven stop", next)
	}

	if _, err := h.folio.Close(ctx, pos.ID, CloseRequest{}); err != nil {
		t.Fatalf("Close(rest at cached price) = %v", err)
	}
	if _, err := h.folio.Close(ctx, pos.ID, CloseRequest{Price: 100}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Close(closed) = %v, want ErrNotFound", err)
	}

	journal, err := h.folio.Journal(ctx)
	if err != nil || len(journal) != 1 {
		t.Fatalf("journal = %+v, %v", journal, err)
	}
	// 10 @ 110 + 30 @ 104 - 40 @ 100
	if journal[0].GrossPnL != 220 || journal[0].NetPnL != 190 {
		t.Fatalf("journal entry = %+v", journal[0])
	}

	stats, err := h.folio.Stats(ctx)
	if err != nil || stats.TotalTrades != 1 || stats.Wins != 1 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}

	if err := h.folio.Reset(ctx); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	pf, _ := h.ledger.Portfolio(ctx)
	trades, _ := h.folio.Trades(ctx, domain.ListOpts{})
	if pf.Cash != 150000 || len(trades) != 0 {
		t.Fatalf("after reset cash=%v trades=%d", pf.Cash, len(trades))
	}
}
