// Package risk implements the portfolio-level entry gates: the circuit
// breaker over drawdown and daily realized loss, and the market regime
// classifier. Neither gate forces exits; both only block new auto-entries.
package risk

import (
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Limits are the breaker thresholds in percent.
type Limits struct {
	MaxDrawdownPct    float64
	DailyLossLimitPct float64
}

// LimitsFrom reads the breaker thresholds out of the runtime settings.
func LimitsFrom(s domain.Settings) Limits {
	return Limits{
		MaxDrawdownPct:    s.MaxDrawdownPct,
		DailyLossLimitPct: s.DailyLossLimitPct,
	}
}

// Breaker is the outcome of one circuit breaker evaluation.
type Breaker struct {
	Tripped     bool    `json:"tripped"`
	Reason      string  `json:"reason,omitempty"`
	DrawdownPct float64 `json:"drawdown_pct"`
	DailyPnL    float64 `json:"daily_pnl"`
}

// DrawdownPct is the decline of equity from starting cash, in percent. It is
// zero when starting cash is not positive.
func DrawdownPct(startingCash, equity float64) float64 {
	if startingCash <= 0 {
		return 0
	}
	return (startingCash - equity) / startingCash * 100
}

// DailyPnL nets today's executions: sell proceeds after commission minus buy
// cost including commission. Callers pass only the trades of the day.
func DailyPnL(trades []domain.Trade) float64 {
	pnl := 0.0
	for _, t := range trades {
		pnl += t.CashDelta()
	}
	return pnl
}

// CheckBreaker evaluates the drawdown condition first and the daily-loss
// condition second; the first to trip supplies the reason.
func CheckBreaker(startingCash, equity float64, today []domain.Trade, lim Limits) Breaker {
	b := Breaker{
		DrawdownPct: DrawdownPct(startingCash, equity),
		DailyPnL:    DailyPnL(today),
	}
	if b.DrawdownPct >= lim.MaxDrawdownPct {
		b.Tripped = true
		b.Reason = fmt.Sprintf("Portfolio drawdown %.1f%% exceeds limit %s%%", b.DrawdownPct, pct(lim.MaxDrawdownPct))
		return b
	}
	if b.DailyPnL < 0 && equity > 0 {
		loss := math.Abs(b.DailyPnL) / equity * 100
		if loss >= lim.DailyLossLimitPct {
			b.Tripped = true
			b.Reason = fmt.Sprintf("Daily loss %.1f%% exceeds limit %s%%", loss, pct(lim.DailyLossLimitPct))
		}
	}
	return b
}

// pct formats a configured limit the way operators type it: whole numbers
// keep one decimal ("10.0"), others print at full precision ("2.5").
func pct(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
