// Package strategy detects pullback-bounce setups on daily bars and ranks
// them by confidence.
package strategy

import (
	"cmp"
	"math"
	"slices"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/indicator"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// Detection thresholds.
const (
	MinBars         = 50
	SignalLookback  = 3
	MinDisplayScore = 30
	MinADX          = 20.0
	MinVolumeRatio  = 0.5

	PullbackDeMarkerMax = 0.30
	BounceDeMarkerMin   = 0.35

	Target1Extension = 0.272
	Target2Extension = 0.618
	StopBuffer       = 0.995
)

// Rejection explains why a frame produced no signal. The empty value means a
// signal was produced.
type Rejection string

const (
	RejectHistory  Rejection = "insufficient history"
	RejectTrend    Rejection = "trend filter"
	RejectStrength Rejection = "adx below minimum"
	RejectVolume   Rejection = "volume below floor"
	RejectPattern  Rejection = "no pullback bounce"
	RejectRange    Rejection = "swing range not positive"
	RejectLevels   Rejection = "invalid stop or target levels"
	RejectScore    Rejection = "confidence below minimum"
)

// Invalid reports whether the rejection concerns a nonsensical setup, as
// opposed to a filter simply not matching.
func (r Rejection) Invalid() bool {
	return r == RejectRange || r == RejectLevels
}

// Evaluate builds the indicator frame for s and runs Detect on its last bar.
func Evaluate(s domain.BarSeries) (domain.Signal, Rejection) {
	if s.Len() < MinBars {
		return domain.Signal{}, RejectHistory
	}
	return Detect(indicator.NewFrame(s))
}

// Detect runs the decision sequence against the last bar of f, stopping at
// the first failed check.
func Detect(f indicator.Frame) (domain.Signal, Rejection) {
	n := f.Len()
	if n < MinBars {
		return domain.Signal{}, RejectHistory
	}
	last := n - 1
	bar := f.Bars[last]
	ema8, ema21 := f.EMA8[last], f.EMA21[last]

	if !(bar.Close > ema21) || !(ema8 > ema21) {
		return domain.Signal{}, RejectTrend
	}
	adx := f.ADX[last]
	if adx < MinADX {
		return domain.Signal{}, RejectStrength
	}
	avgVol := f.AvgVolume[last]
	if avgVol > 0 && bar.Volume < avgVol*MinVolumeRatio {
		return domain.Signal{}, RejectVolume
	}
	if !bounced(f) {
		return domain.Signal{}, RejectPattern
	}

	swingLow, swingHigh := indicator.SwingLowHigh(f.Highs(), f.Lows(),
		indicator.SwingLookback, indicator.SwingPivotBars)
	fibRange := swingHigh - swingLow
	if !(fibRange > 0) {
		return domain.Signal{}, RejectRange
	}
	target1 := swingHigh + fibRange*Target1Extension
	target2 := swingHigh + fibRange*Target2Extension

	stop := num.Price(math.Max(swingLow, ema21) * StopBuffer)
	entry := num.Price(bar.Close)
	t1, t2 := num.Price(target1), num.Price(target2)
	if stop >= entry || t1 <= entry || t2 <= t1 {
		return domain.Signal{}, RejectLevels
	}

	relVol := 1.0
	if avgVol > 0 {
		relVol = num.Round(bar.Volume/avgVol, 2)
	}

	in := ScoreInputs{
		ADX:        adx,
		DeMarker:   f.DeMarker[last],
		RewardRisk: (target2 - entry) / (entry - stop),
		HasRisk:    entry-stop > 0,
	}
	if avgVol > 0 {
		in.RelVolume, in.HasVolume = bar.Volume/avgVol, true
	}
	if ema21 > 0 {
		in.EMASpreadPct, in.HasSpread = (ema8-ema21)/ema21*100, true
	}
	confidence := Score(in)
	if confidence < MinDisplayScore {
		return domain.Signal{}, RejectScore
	}

	return domain.Signal{
		Symbol:         f.Symbol,
		Date:           bar.Date,
		Price:          entry,
		EMA8:           num.Price(ema8),
		EMA21:          num.Price(ema21),
		DeMarker:       num.Round(f.DeMarker[last], 4),
		ADX:            num.Round(adx, 1),
		ATR:            num.Price(f.ATR[last]),
		RelativeVolume: relVol,
		Confidence:     confidence,
		StopPrice:      stop,
		Target1Price:   t1,
		Target2Price:   t2,
		SwingLow:       num.Price(swingLow),
		SwingHigh:      num.Price(swingHigh),
	}, ""
}

// bounced scans the last SignalLookback bar pairs, newest first, for a close
// crossing back above EMA8 together with a DeMarker lift out of oversold.
func bounced(f indicator.Frame) bool {
	n := f.Len()
	for offset := 1; offset <= SignalLookback; offset++ {
		if offset >= n-1 {
			break
		}
		i := n - offset
		prev, cur := f.Bars[i-1], f.Bars[i]
		pullback := prev.Close <= f.EMA8[i-1] && cur.Close > f.EMA8[i]
		oscillator := f.DeMarker[i-1] < PullbackDeMarkerMax && f.DeMarker[i] > BounceDeMarkerMin
		if pullback && oscillator {
			return true
		}
	}
	return false
}

// Rank orders signals by confidence, highest first. Ties keep input order so
// allocation priority is deterministic.
func Rank(signals []domain.Signal) {
	slices.SortStableFunc(signals, func(a, b domain.Signal) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}
