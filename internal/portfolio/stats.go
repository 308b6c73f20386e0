package portfolio

import (
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// Outcome reduces a closed position to its P&L: sell proceeds minus entry
// cost minus every commission paid. PnL and PnLPct are unrounded.
func Outcome(p domain.Position, trades []domain.Trade) domain.TradeOutcome {
	proceeds := 0.0
	for _, t := range trades {
		if t.PositionID == p.ID && t.Action == domain.ActionSell {
			proceeds += t.Gross()
		}
	}
	cost := float64(p.InitialShares) * p.EntryPrice
	pnl := proceeds - cost - p.CommissionPaid
	pct := 0.0
	if cost > 0 {
		pct = pnl / cost * 100
	}
	out := domain.TradeOutcome{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		PnL:        pnl,
		PnLPct:     pct,
	}
	if p.CloseDate != nil {
		out.ClosedAt = *p.CloseDate
	}
	return out
}

// MaxDrawdown returns the largest peak-to-trough decline of the curve in
// percent and the date it was reached.
func MaxDrawdown(curve []domain.EquitySnapshot) (float64, *time.Time) {
	var (
		peak, worst float64
		at          *time.Time
	)
	for i := range curve {
		eq := curve[i].TotalEquity
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - eq) / peak * 100; dd > worst {
			worst = dd
			d := curve[i].Date
			at = &d
		}
	}
	return worst, at
}

// ComputeStats aggregates closed-trade outcomes and the equity curve. A
// break-even trade counts as a win.
func ComputeStats(outcomes []domain.TradeOutcome, curve []domain.EquitySnapshot) domain.PerformanceStats {
	var (
		st                    domain.PerformanceStats
		grossWins, grossLoss  float64
		sumWinPct, sumLossPct float64
		best, worst           *domain.TradeOutcome
	)
	for i := range outcomes {
		o := outcomes[i]
		if o.PnL >= 0 {
			st.Wins++
			grossWins += o.PnL
			sumWinPct += o.PnLPct
		} else {
			st.Losses++
			grossLoss += -o.PnL
			sumLossPct += o.PnLPct
		}
		if best == nil || o.PnL > best.PnL {
			best = &outcomes[i]
		}
		if worst == nil || o.PnL < worst.PnL {
			worst = &outcomes[i]
		}
	}
	st.TotalTrades = st.Wins + st.Losses
	if st.TotalTrades > 0 {
		st.WinPct = num.Round(float64(st.Wins)/float64(st.TotalTrades)*100, 1)
	}
	if st.Wins > 0 {
		st.AvgWinPct = num.Money(sumWinPct / float64(st.Wins))
	}
	if st.Losses > 0 {
		st.AvgLossPct = num.Money(sumLossPct / float64(st.Losses))
	}
	if grossLoss > 0 {
		st.ProfitFactor = num.Money(grossWins / grossLoss)
	}
	st.GrossWins = num.Money(grossWins)
	st.GrossLosses = num.Money(grossLoss)
	st.NetPnL = num.Money(grossWins - grossLoss)

	dd, at := MaxDrawdown(curve)
	st.MaxDrawdownPct = num.Money(dd)
	st.MaxDrawdownAt = at

	st.BestTrade = roundedOutcome(best)
	st.WorstTrade = roundedOutcome(worst)
	return st
}

func roundedOutcome(o *domain.TradeOutcome) *domain.TradeOutcome {
	if o == nil {
		return nil
	}
	c := *o
	c.PnL = num.Money(c.PnL)
	c.PnLPct = num.Money(c.PnLPct)
	return &c
}

// Journal builds the realized view of a closed position from its trades.
func Journal(p domain.Position, trades []domain.Trade) domain.JournalEntry {
	var proceeds, buyComm, sellComm float64
	own := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.PositionID != p.ID {
			continue
		}
		own = append(own, t)
		if t.Action == domain.ActionSell {
			proceeds += t.Gross()
			sellComm += t.Commission
		} else {
			buyComm += t.Commission
		}
	}
	gross := proceeds - float64(p.InitialShares)*p.EntryPrice
	net := gross - buyComm - sellComm
	rr := 0.0
	if risk := p.RiskPerShare() * float64(p.InitialShares); risk > 0 {
		rr = num.Money(gross / risk)
	}
	return domain.JournalEntry{
		Position: p,
		GrossPnL: num.Money(gross),
		NetPnL:   num.Money(net),
		RRRatio:  rr,
		Trades:   own,
	}
}
