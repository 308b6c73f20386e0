// Package bartest builds reproducible daily bar series for tests.
package bartest

import (
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Weekdays returns n consecutive Monday-to-Friday dates starting at from.
func Weekdays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := from; len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

// source is a splitmix64 stream. It is written out rather than taken from
// math/rand so the series never changes across Go releases.
type source struct{ state uint64 }

func (s *source) float() float64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11) / (1 << 53)
}

// normal approximates a standard normal draw as the sum of 12 uniforms
// minus 6.
func (s *source) normal() float64 {
	sum := 0.0
	for range 12 {
		sum += s.float()
	}
	return sum - 6
}

// Walk returns a drifting random walk starting at 100 with one bar per date.
// Each close moves by 0.2% drift plus 2% noise; the same seed always yields
// the same series.
func Walk(symbol string, seed uint64, dates []time.Time) domain.BarSeries {
	src := &source{state: seed}
	s := domain.BarSeries{Symbol: symbol, Bars: make([]domain.Bar, 0, len(dates))}
	c := 100.0
	for _, d := range dates {
		open := c
		c *= 1.002 + 0.02*src.normal()
		spread := c * (0.005 + 0.01*src.float())
		s.Bars = append(s.Bars, domain.Bar{
			Date:   d,
			Open:   open,
			High:   max(open, c) + spread,
			Low:    min(open, c) - spread,
			Close:  c,
			Volume: 1e6 * (0.6 + src.float()),
		})
	}
	return s
}
