package domain

import "time"

// Bar is one daily OHLCV observation. Date is the trading day at midnight UTC.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarSeries is an ordered-by-date bar history for one symbol. Series are
// treated as immutable once fetched.
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s BarSeries) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars.
func (s BarSeries) Empty() bool { return len(s.Bars) == 0 }

// Last returns the most recent bar. It panics on an empty series.
func (s BarSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Through returns the prefix of bars dated on or before date. The returned
// series shares the underlying array.
func (s BarSeries) Through(date time.Time) BarSeries {
	n := 0
	for n < len(s.Bars) && !s.Bars[n].Date.After(date) {
		n++
	}
	return BarSeries{Symbol: s.Symbol, Bars: s.Bars[:n]}
}

// Between returns the bars dated within [start, end].
func (s BarSeries) Between(start, end time.Time) BarSeries {
	out := BarSeries{Symbol: s.Symbol}
	for _, b := range s.Bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// IndexOf returns the index of the bar dated exactly date, or -1.
func (s BarSeries) IndexOf(date time.Time) int {
	for i := len(s.Bars) - 1; i >= 0; i-- {
		if s.Bars[i].Date.Equal(date) {
			return i
		}
		if s.Bars[i].Date.Before(date) {
			break
		}
	}
	return -1
}

// Closes returns the close column.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column.
func (s BarSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column.
func (s BarSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume column.
func (s BarSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// TradingDay truncates t to midnight UTC of its calendar date in loc.
func TradingDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
