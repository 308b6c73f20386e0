package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
)

func buyOrder(t *testing.T, symbol string, shares int, at time.Time) portfolio.Order {
	t.Helper()
	o, err := portfolio.PlanManual(portfolio.ManualEntry{
		Symbol: symbol, Price: 50, Stop: 45, Target1: 55, Target2: 60, Shares: shares,
	}, 10, portfolio.Book{Cash: 1e9, At: at})
	if err != nil {
		t.Fatalf("PlanManual: %v", err)
	}
	return o
}

func TestLedgerOpenAndSell(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	l := NewLedger(10000)

	o := buyOrder(t, "ACME", 100, at)
	pos, err := l.OpenPosition(ctx, o.Position, o.Trade)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if pos.ID != 1 {
		t.Fatalf("id = %d, want 1", pos.ID)
	}
	pf, _ := l.Portfolio(ctx)
	if pf.Cash != 4990 {
		t.Fatalf("cash = %v, want 4990", pf.Cash)
	}

	if _, err := l.OpenPosition(ctx, o.Position, o.Trade); !errors.Is(err, domain.ErrAlreadyHeld) {
		t.Fatalf("second open: err = %v", err)
	}
	big := buyOrder(t, "BIG", 1000, at)
	if _, err := l.OpenPosition(ctx, big.Position, big.Trade); !errors.Is(err, domain.ErrInsufficientCash) {
		t.Fatalf("oversized open: err = %v", err)
	}

	next, sell, err := portfolio.Sell(pos, 25, 55, 10, domain.ReasonTarget1, at.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if _, err := l.SellFromPosition(ctx, next, sell); err != nil {
		t.Fatalf("SellFromPosition: %v", err)
	}
	pf, _ = l.Portfolio(ctx)
	if pf.Cash != 4990+1375-10 {
		t.Fatalf("cash = %v", pf.Cash)
	}
	// Replaying the same transition against the updated row is stale.
	if _, err := l.SellFromPosition(ctx, next, sell); !errors.Is(err, domain.ErrStaleState) {
		t.Fatalf("stale sell: err = %v", err)
	}

	trades, _ := l.PositionTrades(ctx, pos.ID)
	if len(trades) != 2 || trades[1].PositionID != pos.ID || trades[1].ID != 2 {
		t.Fatalf("trades %+v", trades)
	}
}

func TestLedgerListings(t *testing.T) {
	ctx := context.Background()
	d1 := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	l := NewLedger(1e6)

	var opened []domain.Position
	for _, sym := range []string{"A", "B", "C"} {
		o := buyOrder(t, sym, 10, d1)
		p, err := l.OpenPosition(ctx, o.Position, o.Trade)
		if err != nil {
			t.Fatalf("open %s: %v", sym, err)
		}
		opened = append(opened, p)
	}
	for i, p := range opened[:2] {
		at := d1
		if i == 0 {
			at = d2
		}
		next, sell, _ := portfolio.Sell(p, p.Shares, 52, 10, domain.ReasonManual, at)
		if _, err := l.SellFromPosition(ctx, next, sell); err != nil {
			t.Fatalf("close %s: %v", p.Symbol, err)
		}
	}

	open, _ := l.ListOpen(ctx)
	if len(open) != 1 || open[0].Symbol != "C" {
		t.Fatalf("open %+v", open)
	}
	closed, _ := l.ListClosed(ctx)
	if len(closed) != 2 || closed[0].Symbol != "A" || closed[1].Symbol != "B" {
		t.Fatalf("closed order %v, %v", closed[0].Symbol, closed[1].Symbol)
	}

	until := d2
	day1, _ := l.ListTrades(ctx, domain.ListOpts{Since: &d1, Until: &until})
	if len(day1) != 4 {
		t.Fatalf("day-1 trades = %d, want 4", len(day1))
	}
	page, _ := l.ListTrades(ctx, domain.ListOpts{Limit: 2, Offset: 3})
	if len(page) != 2 || page[0].ID != 4 {
		t.Fatalf("page %+v", page)
	}

	if err := l.UpdateStop(ctx, opened[0].ID, 60, 60); !errors.Is(err, domain.ErrPositionClosed) {
		t.Fatalf("update stop on closed: %v", err)
	}
	if err := l.Reset(ctx, 5000); err != nil {
		t.Fatal(err)
	}
	pf, _ := l.Portfolio(ctx)
	open, _ = l.ListOpen(ctx)
	if pf.Cash != 5000 || len(open) != 0 {
		t.Fatalf("after reset cash=%v open=%d", pf.Cash, len(open))
	}
}
