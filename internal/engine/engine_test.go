package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
)

type recorder struct {
	lines []string
}

func (r *recorder) Emit(_ context.Context, level, msg string) {
	r.lines = append(r.lines, level+": "+msg)
}

var day = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func newEngine(cash float64) (*Engine, *memory.Ledger, *recorder) {
	l := memory.NewLedger(cash)
	rec := &recorder{}
	return New(l, rec, slog.New(slog.NewTextHandler(io.Discard, nil))), l, rec
}

func settings() domain.Settings {
	s := domain.DefaultSettings()
	s.SlippagePct = 0
	return s
}

func sig(symbol string, confidence int) domain.Signal {
	return domain.Signal{
		Symbol: symbol, Date: day, Price: 50, StopPrice: 45,
		Target1Price: 55, Target2Price: 60, Confidence: confidence,
	}
}

func TestEnterAllRespectsRankAndLimits(t *testing.T) {
	ctx := context.Background()
	e, l, rec := newEngine(150000)
	s := settings()
	s.MaxPositions = 1

	signals := []domain.Signal{sig("AAA", 80), sig("LOW", 20), sig("BBB", 70)}
	entries, err := e.EnterAll(ctx, signals, s, nil, day)
	if err != nil {
		t.Fatalf("EnterAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Position.Symbol != "AAA" || entries[0].Index != 0 {
		t.Fatalf("entries %+v", entries)
	}
	open, _ := l.ListOpen(ctx)
	if len(open) != 1 || open[0].Shares != 600 {
		t.Fatalf("open %+v", open)
	}
	if len(rec.lines) != 1 || rec.lines[0] != "info: Bought AAA @ $50.00 (score 80)" {
		t.Fatalf("notifications %q", rec.lines)
	}
}

func TestEnterAllSizesAgainstRemainingCash(t *testing.T) {
	ctx := context.Background()
	e, l, _ := newEngine(40000)
	entries, err := e.EnterAll(ctx, []domain.Signal{sig("AAA", 90), sig("BBB", 80)}, settings(), nil, day)
	if err != nil {
		t.Fatalf("EnterAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// AAA: equity 40000 risks 800 for 160 shares. BBB sees 31990 cash and
	// the same equity less commission.
	if entries[0].Position.Shares != 160 || entries[1].Position.Shares != 159 {
		t.Fatalf("shares %d, %d", entries[0].Position.Shares, entries[1].Position.Shares)
	}
	pf, _ := l.Portfolio(ctx)
	if pf.Cash < 0 {
		t.Fatalf("cash went negative: %v", pf.Cash)
	}
}

func TestCheckExitsGapThrough(t *testing.T) {
	ctx := context.Background()
	e, l, rec := newEngine(150000)
	pos, err := e.Enter(ctx, sig("AAA", 80), settings(), nil, day)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	rec.lines = nil

	actions, err := e.CheckExits(ctx, domain.PriceSnapshot{"AAA": 62, "ZZZ": 1}, 10, day.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("CheckExits: %v", err)
	}
	if len(actions) != 2 || !strings.HasPrefix(actions[0], "TARGET 1 HIT (gap)") || !strings.HasPrefix(actions[1], "TARGET 2 HIT") {
		t.Fatalf("actions %q", actions)
	}
	got, _ := l.GetPosition(ctx, pos.ID)
	if got.State != domain.StateClosed || got.Shares != 0 || got.CloseReason != domain.ReasonTarget2 {
		t.Fatalf("position %+v", got)
	}
	trades, _ := l.PositionTrades(ctx, pos.ID)
	if len(trades) != 3 || trades[1].Price != 55 || trades[1].Shares != 150 || trades[2].Price != 62 || trades[2].Shares != 450 {
		t.Fatalf("trades %+v", trades)
	}
	pf, _ := l.Portfolio(ctx)
	want := 150000.0 - 30010 + (150*55 - 10) + (450*62 - 10)
	if pf.Cash != want {
		t.Fatalf("cash = %v, want %v", pf.Cash, want)
	}
	if len(rec.lines) != 2 {
		t.Fatalf("notifications %q", rec.lines)
	}
}

func TestTrailingAfterPartial(t *testing.T) {
	ctx := context.Background()
	e, l, _ := newEngine(150000)
	pos, _ := e.Enter(ctx, sig("AAA", 80), settings(), nil, day)

	if acts, _ := e.UpdateTrailingStops(ctx, map[string]float64{"AAA": 70}); len(acts) != 0 {
		t.Fatalf("trailed before target 1: %q", acts)
	}
	if _, err := e.CheckExits(ctx, domain.PriceSnapshot{"AAA": 56}, 10, day); err != nil {
		t.Fatal(err)
	}
	acts, err := e.UpdateTrailingStops(ctx, map[string]float64{"AAA": 56})
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0] != "TRAIL: AAA stop raised $50.00 → $55.72 (8 EMA)" {
		t.Fatalf("actions %q", acts)
	}
	got, _ := l.GetPosition(ctx, pos.ID)
	if got.StopPrice != 55.72 || got.State != domain.StatePartial {
		t.Fatalf("position %+v", got)
	}
	if acts, _ := e.UpdateTrailingStops(ctx, map[string]float64{"AAA": 52}); len(acts) != 0 {
		t.Fatalf("stop lowered: %q", acts)
	}
}

func TestSellRejectsClosedPosition(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(150000)
	pos, _ := e.Enter(ctx, sig("AAA", 80), settings(), nil, day)
	closed, err := e.Sell(ctx, pos.ID, 0, 51, domain.ReasonManual, 10, day)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if closed.State != domain.StateClosed {
		t.Fatalf("state %s", closed.State)
	}
	if _, err := e.Sell(ctx, pos.ID, 0, 51, domain.ReasonManual, 10, day); !errors.Is(err, domain.ErrPositionClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.Sell(ctx, 99, 1, 51, domain.ReasonManual, 10, day); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnterManual(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(150000)
	m := portfolio.ManualEntry{Symbol: "AAA", Price: 50, Stop: 45, Target1: 55, Target2: 60}
	sized, err := e.EnterManual(ctx, m, settings(), nil, day)
	if err != nil {
		t.Fatalf("EnterManual: %v", err)
	}
	if sized.Shares != 600 {
		t.Fatalf("sized shares = %d", sized.Shares)
	}
	m.Symbol, m.Shares = "BBB", 10
	fixed, err := e.EnterManual(ctx, m, settings(), nil, day)
	if err != nil || fixed.Shares != 10 {
		t.Fatalf("fixed: %+v %v", fixed, err)
	}
}

func TestCheckBreaker(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(150000)
	m := portfolio.ManualEntry{Symbol: "AAA", Price: 50, Stop: 45, Target1: 55, Target2: 60, Shares: 1000}
	if _, err := e.EnterManual(ctx, m, settings(), nil, day); err != nil {
		t.Fatal(err)
	}
	b, err := e.CheckBreaker(ctx, settings(), domain.PriceSnapshot{"AAA": 33}, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Tripped || b.Reason != "Portfolio drawdown 11.3% exceeds limit 10.0%" {
		t.Fatalf("breaker %+v", b)
	}
	// The buy's cash outflow counts against the day it executed only.
	next, _ := e.CheckBreaker(ctx, settings(), domain.PriceSnapshot{"AAA": 50}, day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	if next.Tripped || next.DailyPnL != 0 {
		t.Fatalf("tripped next day: %+v", next)
	}
}
