package portfolio

import (
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// MarkToMarket returns the value of open positions at snapshot prices,
// falling back to entry price for symbols the snapshot lacks, and the
// unrealized P&L against entry.
func MarkToMarket(open []domain.Position, prices domain.PriceSnapshot) (value, unrealized float64) {
	for _, p := range open {
		if !p.IsOpen() {
			continue
		}
		px := prices.Price(p.Symbol, p.EntryPrice)
		value += float64(p.Shares) * px
		unrealized += float64(p.Shares) * (px - p.EntryPrice)
	}
	return value, unrealized
}

// Equity is cash plus the marked value of open positions, unrounded. Sizing
// uses this value directly.
func Equity(pf domain.Portfolio, open []domain.Position, prices domain.PriceSnapshot) float64 {
	value, _ := MarkToMarket(open, prices)
	return pf.Cash + value
}

// Summarize builds the rounded portfolio summary.
func Summarize(pf domain.Portfolio, open []domain.Position, prices domain.PriceSnapshot) domain.PortfolioSummary {
	value, unrealized := MarkToMarket(open, prices)
	equity := pf.Cash + value
	count := 0
	for _, p := range open {
		if p.IsOpen() {
			count++
		}
	}
	return domain.PortfolioSummary{
		Cash:           num.Money(pf.Cash),
		PositionsValue: num.Money(value),
		TotalEquity:    num.Money(equity),
		UnrealizedPnL:  num.Money(unrealized),
		NetPnL:         num.Money(equity - pf.StartingCash),
		StartingCash:   num.Money(pf.StartingCash),
		OpenPositions:  count,
	}
}

// Enrich returns open positions with their mark and unrealized P&L.
func Enrich(open []domain.Position, prices domain.PriceSnapshot) []domain.OpenPositionView {
	out := make([]domain.OpenPositionView, 0, len(open))
	for _, p := range open {
		px := prices.Price(p.Symbol, p.EntryPrice)
		pnl := float64(p.Shares) * (px - p.EntryPrice)
		pct := 0.0
		if p.EntryPrice > 0 {
			pct = (px - p.EntryPrice) / p.EntryPrice * 100
		}
		out = append(out, domain.OpenPositionView{
			Position:      p,
			CurrentPrice:  num.Price(px),
			UnrealizedPnL: num.Money(pnl),
			PnLPct:        num.Money(pct),
		})
	}
	return out
}
