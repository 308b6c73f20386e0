package backtest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	ruleWide  = 100
	ruleShort = 70
)

// Render writes the human-readable report of r to w.
func Render(w io.Writer, r Result) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	s := r.Summary
	st := s.Stats

	heavy := strings.Repeat("=", ruleShort)
	light := strings.Repeat("-", ruleShort)

	fmt.Fprintf(&b, "\n%s\n  BACKTEST RESULTS\n  Period: %s -> %s  Symbols: %d  Trading days: %d\n%s\n",
		heavy, s.Start.Format(time.DateOnly), s.End.Format(time.DateOnly), s.Symbols, s.TradingDays, heavy)
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "  Skipped (short history): %s\n", strings.Join(s.Skipped, ", "))
	}
	b.WriteString(p.Sprintf("  Starting Cash:      $%12.2f\n", s.StartingCash))
	b.WriteString(p.Sprintf("  Final Equity:       $%12.2f\n", s.FinalEquity))
	b.WriteString(p.Sprintf("  Net P&L:            $%12.2f  (%+.1f%%)\n", s.NetPnL, s.ReturnPct))
	b.WriteString(light + "\n")
	fmt.Fprintf(&b, "  Signals Generated:  %6d\n", s.SignalsGenerated)
	fmt.Fprintf(&b, "  Signals Traded:     %6d\n", s.SignalsTraded)
	if s.BreakerDays > 0 {
		fmt.Fprintf(&b, "  Breaker Days:       %6d\n", s.BreakerDays)
	}
	fmt.Fprintf(&b, "  Trades Executed:    %6d\n", st.TotalTrades)

	if st.TotalTrades == 0 {
		b.WriteString("\n  No trades executed during backtest period.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	lossPct := float64(st.Losses) / float64(st.TotalTrades) * 100
	fmt.Fprintf(&b, "  Wins:               %6d  (%.1f%%)\n", st.Wins, st.WinPct)
	fmt.Fprintf(&b, "  Losses:             %6d  (%.1f%%)\n", st.Losses, lossPct)
	b.WriteString(light + "\n")
	if st.Wins > 0 {
		fmt.Fprintf(&b, "  Avg Win:            %+11.2f%%\n", st.AvgWinPct)
		b.WriteString(p.Sprintf("  Gross Wins:         $%12.2f\n", st.GrossWins))
	}
	if st.Losses > 0 {
		fmt.Fprintf(&b, "  Avg Loss:           %+11.2f%%\n", st.AvgLossPct)
		b.WriteString(p.Sprintf("  Gross Losses:       $%12.2f\n", st.GrossLosses))
		fmt.Fprintf(&b, "  Profit Factor:      %12.2f\n", st.ProfitFactor)
	} else {
		b.WriteString("  Profit Factor:       N/A\n")
	}
	dd := ""
	if st.MaxDrawdownAt != nil {
		dd = st.MaxDrawdownAt.Format(time.DateOnly)
	}
	fmt.Fprintf(&b, "  Max Drawdown:       %11.2f%%  (%s)\n", st.MaxDrawdownPct, dd)
	b.WriteString(light + "\n")
	if st.BestTrade != nil {
		b.WriteString(p.Sprintf("  Best Trade:         %-8s $%+10.2f  (%+.1f%%)\n", st.BestTrade.Symbol, st.BestTrade.PnL, st.BestTrade.PnLPct))
	}
	if st.WorstTrade != nil {
		b.WriteString(p.Sprintf("  Worst Trade:        %-8s $%+10.2f  (%+.1f%%)\n", st.WorstTrade.Symbol, st.WorstTrade.PnL, st.WorstTrade.PnLPct))
	}

	wide := strings.Repeat("=", ruleWide)
	fmt.Fprintf(&b, "\n%s\n  TRADE JOURNAL (every execution)\n%s\n", wide, wide)
	fmt.Fprintf(&b, "  %-8s %-12s %-6s %7s %9s %11s %-18s %12s\n",
		"Symbol", "Date", "Action", "Shares", "Price", "Proceeds", "Reason", "Position P&L")
	fmt.Fprintf(&b, "  %s\n", strings.Repeat("-", 93))
	for _, ex := range r.Journal {
		pnl := ""
		if ex.PositionPnL != nil {
			pnl = p.Sprintf("$%+10.2f", *ex.PositionPnL)
		}
		b.WriteString(p.Sprintf("  %-8s %-12s %-6s %7d $%8.2f $%+10.2f %-18s %s\n",
			ex.Symbol, ex.Date.Format(time.DateOnly), strings.ToUpper(string(ex.Action)),
			ex.Shares, ex.Price, ex.Proceeds, ex.Label, pnl))
	}

	fmt.Fprintf(&b, "\n%s\n  MONTHLY EQUITY\n%s\n", heavy, heavy)
	for _, m := range r.Monthly {
		b.WriteString(p.Sprintf("  %s  $%12.2f  %+6.1f%%  %s\n", m.Month, m.Equity, m.ChangePct, bar(m.ChangePct)))
	}
	b.WriteString(heavy + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func bar(pct float64) string {
	n := int(pct * 2)
	if pct > 0 {
		return strings.Repeat("#", max(0, n))
	}
	return strings.Repeat(".", max(0, -n))
}
