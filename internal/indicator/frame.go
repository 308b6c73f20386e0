package indicator

import "github.com/alanyoungcy/swingbot/internal/domain"

// VolumeAvgPeriod is the window of the average-volume column.
const VolumeAvgPeriod = 20

// Frame is a bar series with its derived indicator columns attached. All
// columns have the same length as Bars.
type Frame struct {
	Symbol    string
	Bars      []domain.Bar
	EMA8      []float64
	EMA21     []float64
	DeMarker  []float64
	ADX       []float64
	ATR       []float64
	AvgVolume []float64
}

// NewFrame computes every indicator column for s.
func NewFrame(s domain.BarSeries) Frame {
	highs, lows, closes := s.Highs(), s.Lows(), s.Closes()
	return Frame{
		Symbol:    s.Symbol,
		Bars:      s.Bars,
		EMA8:      EMA(closes, 8),
		EMA21:     EMA(closes, 21),
		DeMarker:  DeMarker(highs, lows, DeMarkerPeriod),
		ADX:       ADX(highs, lows, closes, ADXPeriod),
		ATR:       ATR(highs, lows, closes, ATRPeriod),
		AvgVolume: SMA(s.Volumes(), VolumeAvgPeriod),
	}
}

// Len returns the number of bars.
func (f Frame) Len() int { return len(f.Bars) }

// Upto returns the causal prefix ending at index i inclusive.
func (f Frame) Upto(i int) Frame {
	n := i + 1
	if n > len(f.Bars) {
		n = len(f.Bars)
	}
	if n < 0 {
		n = 0
	}
	return Frame{
		Symbol:    f.Symbol,
		Bars:      f.Bars[:n],
		EMA8:      f.EMA8[:n],
		EMA21:     f.EMA21[:n],
		DeMarker:  f.DeMarker[:n],
		ADX:       f.ADX[:n],
		ATR:       f.ATR[:n],
		AvgVolume: f.AvgVolume[:n],
	}
}

// Highs returns the high column of the frame.
func (f Frame) Highs() []float64 {
	return domain.BarSeries{Bars: f.Bars}.Highs()
}

// Lows returns the low column of the frame.
func (f Frame) Lows() []float64 {
	return domain.BarSeries{Bars: f.Bars}.Lows()
}
