package risk

import (
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func TestCheckBreakerDrawdown(t *testing.T) {
	b := CheckBreaker(150000, 133000, nil, Limits{MaxDrawdownPct: 10, DailyLossLimitPct: 3})
	if !b.Tripped {
		t.Fatal("breaker did not trip at 11.33% drawdown")
	}
	if got := b.Reason; got != "Portfolio drawdown 11.3% exceeds limit 10.0%" {
		t.Fatalf("reason = %q", got)
	}
	if b.DrawdownPct < 11.33 || b.DrawdownPct > 11.34 {
		t.Fatalf("drawdown = %v", b.DrawdownPct)
	}
}

func TestCheckBreakerDailyLoss(t *testing.T) {
	today := []domain.Trade{
		{Action: domain.ActionBuy, Shares: 100, Price: 50, Commission: 10},
		{Action: domain.ActionSell, Shares: 100, Price: 20, Commission: 10},
	}
	tests := []struct {
		name    string
		limit   float64
		tripped bool
		reason  string
	}{
		{"over limit", 3, true, "Daily loss 3.0% exceeds limit 3.0%"},
		{"under limit", 3.5, false, ""},
		{"fractional limit", 2.5, true, "Daily loss 3.0% exceeds limit 2.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := CheckBreaker(100000, 100000, today, Limits{MaxDrawdownPct: 10, DailyLossLimitPct: tt.limit})
			if b.Tripped != tt.tripped || b.Reason != tt.reason {
				t.Fatalf("got tripped=%v reason=%q", b.Tripped, b.Reason)
			}
			if b.DailyPnL != -3020 {
				t.Fatalf("daily pnl = %v, want -3020", b.DailyPnL)
			}
		})
	}
}

func TestCheckBreakerQuiet(t *testing.T) {
	gain := []domain.Trade{{Action: domain.ActionSell, Shares: 10, Price: 100, Commission: 10}}
	b := CheckBreaker(150000, 149000, gain, LimitsFrom(domain.DefaultSettings()))
	if b.Tripped {
		t.Fatalf("unexpected trip: %s", b.Reason)
	}
	if DrawdownPct(0, 100) != 0 {
		t.Fatal("zero starting cash must not divide")
	}
}

func TestClassifyRegime(t *testing.T) {
	at := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	up := make([]float64, 300)
	down := make([]float64, 300)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 500 - float64(i)
	}
	chop := append(append([]float64{}, up...), 300, 250)

	tests := []struct {
		name   string
		closes []float64
		want   domain.Regime
		blocks bool
	}{
		{"rising", up, domain.RegimeBull, false},
		{"falling", down, domain.RegimeBear, true},
		{"pullback", chop, domain.RegimeMixed, false},
		{"empty", nil, domain.RegimeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ClassifyRegime(DefaultRegimeIndex, tt.closes, at)
			if r.Regime != tt.want {
				t.Fatalf("regime = %s, want %s (price %v ema50 %v ema200 %v)", r.Regime, tt.want, r.Price, r.EMA50, r.EMA200)
			}
			if r.BlocksEntries() != tt.blocks {
				t.Fatalf("BlocksEntries = %v", r.BlocksEntries())
			}
			if r.Index != "SPY" || !r.At.Equal(at) {
				t.Fatalf("reading %+v", r)
			}
		})
	}
}
