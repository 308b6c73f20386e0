package risk

import (
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/indicator"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// Regime EMA periods.
const (
	RegimeFastPeriod = 50
	RegimeSlowPeriod = 200
)

// DefaultRegimeIndex is the index ticker used when none is configured.
const DefaultRegimeIndex = "SPY"

// ClassifyRegime reads the trend of an index from its closes: BULL when the
// last close sits above a rising EMA stack, BEAR when below a falling one,
// MIXED otherwise. An empty series is UNKNOWN.
func ClassifyRegime(index string, closes []float64, at time.Time) domain.RegimeReading {
	r := domain.RegimeReading{Regime: domain.RegimeUnknown, Index: index, At: at}
	if len(closes) == 0 {
		return r
	}
	fast := indicator.EMA(closes, RegimeFastPeriod)
	slow := indicator.EMA(closes, RegimeSlowPeriod)
	last := len(closes) - 1
	price, e50, e200 := closes[last], fast[last], slow[last]

	switch {
	case price > e50 && e50 > e200:
		r.Regime = domain.RegimeBull
	case price < e50 && e50 < e200:
		r.Regime = domain.RegimeBear
	default:
		r.Regime = domain.RegimeMixed
	}
	r.Price = num.Money(price)
	r.EMA50 = num.Money(e50)
	r.EMA200 = num.Money(e200)
	return r
}

// Unknown is the fail-safe reading used when the index cannot be fetched.
func Unknown(index string, at time.Time) domain.RegimeReading {
	return domain.RegimeReading{Regime: domain.RegimeUnknown, Index: index, At: at}
}
