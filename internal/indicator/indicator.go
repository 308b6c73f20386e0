// Package indicator implements the stateless time-series transforms used by
// signal detection. Every function is causal: output index i depends only on
// inputs 0..i, so evaluating a prefix of a series gives the same values as
// evaluating the full series and reading the prefix.
package indicator

import "math"

// Default periods.
const (
	DeMarkerPeriod = 14
	ADXPeriod      = 14
	ATRPeriod      = 14
	SwingLookback  = 40
	SwingPivotBars = 5
)

// EMA returns the exponential moving average with α = 2/(period+1). The
// recursion is seeded by the first non-NaN value; earlier slots are NaN. A
// NaN input after seeding carries the previous average forward.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	alpha := 2.0 / (float64(period) + 1.0)
	seeded := false
	prev := math.NaN()
	for i, x := range values {
		switch {
		case math.IsNaN(x):
			out[i] = prev
			continue
		case !seeded:
			prev = x
			seeded = true
		default:
			prev = prev + alpha*(x-prev)
		}
		out[i] = prev
	}
	return out
}

// SMA returns the trailing simple moving average over period values. A slot
// is NaN until a full window exists or when any value in its window is NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i+1-period : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|). The
// first slot has no previous close and is high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		hl := high[i] - low[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR is the EMA of true range.
func ATR(high, low, close []float64, period int) []float64 {
	return EMA(TrueRange(high, low, close), period)
}

// DeMarker returns SMA(demax)/(SMA(demax)+SMA(demin)) where demax is the
// upward high expansion and demin the downward low expansion, each floored at
// zero. Slots are NaN while the window is incomplete or the denominator is 0.
func DeMarker(high, low []float64, period int) []float64 {
	n := len(high)
	demax := make([]float64, n)
	demin := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			demax[i] = math.NaN()
			demin[i] = math.NaN()
			continue
		}
		demax[i] = math.Max(high[i]-high[i-1], 0)
		demin[i] = math.Max(low[i-1]-low[i], 0)
	}
	smax := SMA(demax, period)
	smin := SMA(demin, period)
	out := make([]float64, n)
	for i := range out {
		den := smax[i] + smin[i]
		if math.IsNaN(den) || den == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = smax[i] / den
	}
	return out
}

// Directional holds the directional movement system for one series.
type Directional struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// DMI computes +DI, -DI and ADX. Only the larger of the two directional moves
// survives on each bar; on a tie the down move survives. DX is 0 when both DI
// are 0, and ADX is 0 where undefined.
func DMI(high, low, close []float64, period int) Directional {
	n := len(high)
	plus := make([]float64, n)
	minus := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			plus[i] = math.NaN()
			minus[i] = math.NaN()
			continue
		}
		p := math.Max(high[i]-high[i-1], 0)
		m := math.Max(low[i-1]-low[i], 0)
		if p <= m {
			p = 0
		}
		if m <= p {
			m = 0
		}
		plus[i], minus[i] = p, m
	}

	atr := ATR(high, low, close, period)
	sp := EMA(plus, period)
	sm := EMA(minus, period)

	d := Directional{
		PlusDI:  make([]float64, n),
		MinusDI: make([]float64, n),
	}
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(sp[i]) {
			d.PlusDI[i], d.MinusDI[i] = math.NaN(), math.NaN()
			dx[i] = math.NaN()
			continue
		}
		if atr[i] == 0 {
			d.PlusDI[i], d.MinusDI[i] = 0, 0
		} else {
			d.PlusDI[i] = 100 * sp[i] / atr[i]
			d.MinusDI[i] = 100 * sm[i] / atr[i]
		}
		sum := d.PlusDI[i] + d.MinusDI[i]
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(d.PlusDI[i]-d.MinusDI[i]) / sum
	}

	d.ADX = EMA(dx, period)
	for i, v := range d.ADX {
		if math.IsNaN(v) {
			d.ADX[i] = 0
		}
	}
	return d
}

// ADX returns the average directional index.
func ADX(high, low, close []float64, period int) []float64 {
	return DMI(high, low, close, period).ADX
}

// SwingLowHigh finds the most recent structural pivot low and pivot high
// within the last lookback bars. A bar is a pivot high when its high is the
// maximum of the 2*pivotBars+1 bars centred on it, and a pivot low likewise
// for the minimum. Without a pivot the window's raw extreme is used.
func SwingLowHigh(high, low []float64, lookback, pivotBars int) (swingLow, swingHigh float64) {
	start := len(high) - lookback
	if start < 0 {
		start = 0
	}
	h := high[start:]
	l := low[start:]
	if len(h) == 0 {
		return math.NaN(), math.NaN()
	}

	swingHigh, swingLow = math.NaN(), math.NaN()
	for i := pivotBars; i < len(h)-pivotBars; i++ {
		if h[i] >= maxOf(h[i-pivotBars:i+pivotBars+1]) {
			swingHigh = h[i]
		}
		if l[i] <= minOf(l[i-pivotBars:i+pivotBars+1]) {
			swingLow = l[i]
		}
	}
	if math.IsNaN(swingHigh) {
		swingHigh = maxOf(h)
	}
	if math.IsNaN(swingLow) {
		swingLow = minOf(l)
	}
	return swingLow, swingHigh
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}
