package bartest

import (
	"slices"
	"testing"
	"time"
)

func TestWalkIsReproducible(t *testing.T) {
	dates := Weekdays(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 30)
	if dates[0].Weekday() != time.Friday || dates[1].Weekday() != time.Monday {
		t.Fatalf("weekdays start %v %v", dates[0].Weekday(), dates[1].Weekday())
	}
	a, b := Walk("A", 3, dates), Walk("A", 3, dates)
	if !slices.Equal(a.Bars, b.Bars) {
		t.Fatal("same seed gave different bars")
	}
	if c := Walk("A", 4, dates); slices.Equal(a.Bars, c.Bars) {
		t.Fatal("different seeds gave identical bars")
	}
	for i, bar := range a.Bars {
		if bar.Low > min(bar.Open, bar.Close) || bar.High < max(bar.Open, bar.Close) || bar.Low <= 0 {
			t.Fatalf("bar %d out of range: %+v", i, bar)
		}
	}
}
