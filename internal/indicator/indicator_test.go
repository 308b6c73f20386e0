package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/domain/bartest"
)

func wave(n int) (high, low, close []float64) {
	for i := 0; i < n; i++ {
		mid := 100 + 10*math.Sin(float64(i)*0.3) + float64(i)*0.1
		high = append(high, mid+1)
		low = append(low, mid-1)
		close = append(close, mid+0.25)
	}
	return high, low, close
}

func TestEMAConstantSeries(t *testing.T) {
	in := make([]float64, 60)
	for i := range in {
		in[i] = 42.5
	}
	for _, period := range []int{8, 21, 50} {
		out := EMA(in, period)
		for i, v := range out {
			if v != 42.5 {
				t.Fatalf("EMA(%d)[%d] = %v, want 42.5", period, i, v)
			}
		}
	}
}

func TestEMAStepResponse(t *testing.T) {
	in := make([]float64, 80)
	for i := range in {
		if i < 10 {
			in[i] = 1
		} else {
			in[i] = 2
		}
	}
	out := EMA(in, 8)
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("EMA not monotonic at %d: %v < %v", i, out[i], out[i-1])
		}
		if out[i] > 2 {
			t.Fatalf("EMA overshoot at %d: %v", i, out[i])
		}
	}
	if math.Abs(out[len(out)-1]-2) > 1e-6 {
		t.Fatalf("EMA did not converge: %v", out[len(out)-1])
	}
}

func TestEMASeedsOnFirstValue(t *testing.T) {
	out := EMA([]float64{math.NaN(), 3, 4}, 3)
	if !math.IsNaN(out[0]) {
		t.Errorf("out[0] = %v, want NaN", out[0])
	}
	if out[1] != 3 {
		t.Errorf("out[1] = %v, want 3", out[1])
	}
	if out[2] != 3.5 {
		t.Errorf("out[2] = %v, want 3.5", out[2])
	}
}

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4}, 2)
	if !math.IsNaN(out[0]) {
		t.Fatalf("out[0] = %v, want NaN", out[0])
	}
	want := []float64{1.5, 2.5, 3.5}
	for i, w := range want {
		if out[i+1] != w {
			t.Errorf("out[%d] = %v, want %v", i+1, out[i+1], w)
		}
	}
	if got := SMA([]float64{math.NaN(), 1, 1}, 2); !math.IsNaN(got[1]) || got[2] != 1 {
		t.Errorf("NaN window handling: got %v", got)
	}
}

func TestTrueRange(t *testing.T) {
	tr := TrueRange(
		[]float64{10, 12, 11},
		[]float64{9, 11, 7},
		[]float64{9.5, 11.5, 8},
	)
	want := []float64{1, 2.5, 4.5}
	for i := range want {
		if tr[i] != want[i] {
			t.Errorf("tr[%d] = %v, want %v", i, tr[i], want[i])
		}
	}
}

func TestDeMarkerBounds(t *testing.T) {
	high, low, _ := wave(120)
	dem := DeMarker(high, low, DeMarkerPeriod)
	for i, v := range dem {
		if i < DeMarkerPeriod {
			if !math.IsNaN(v) {
				t.Fatalf("dem[%d] = %v, want NaN during warmup", i, v)
			}
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 1 {
			t.Fatalf("dem[%d] = %v out of [0,1]", i, v)
		}
	}
	if math.IsNaN(dem[len(dem)-1]) {
		t.Fatal("expected a defined DeMarker on a moving series")
	}
}

func TestDeMarkerFlatIsUndefined(t *testing.T) {
	high := make([]float64, 40)
	low := make([]float64, 40)
	for i := range high {
		high[i], low[i] = 10, 9
	}
	for i, v := range DeMarker(high, low, DeMarkerPeriod) {
		if !math.IsNaN(v) {
			t.Fatalf("dem[%d] = %v, want NaN for flat series", i, v)
		}
	}
}

func TestADXTrendingSeries(t *testing.T) {
	n := 60
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 10 + float64(i)
		low[i] = high[i] - 1
		close[i] = high[i] - 0.5
	}
	d := DMI(high, low, close, ADXPeriod)
	if d.ADX[0] != 0 {
		t.Errorf("ADX[0] = %v, want 0", d.ADX[0])
	}
	if got := d.ADX[n-1]; got < 99.9 {
		t.Errorf("ADX on a one-way trend = %v, want ~100", got)
	}
	if d.MinusDI[n-1] != 0 {
		t.Errorf("-DI = %v, want 0", d.MinusDI[n-1])
	}
}

func TestDMITieGoesToDownMove(t *testing.T) {
	n := 30
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 100 + float64(i)
		low[i] = 100 - float64(i)
		close[i] = 100
	}
	d := DMI(high, low, close, ADXPeriod)
	if d.PlusDI[n-1] != 0 {
		t.Errorf("+DI = %v, want 0 when moves tie", d.PlusDI[n-1])
	}
	if d.MinusDI[n-1] <= 0 {
		t.Errorf("-DI = %v, want > 0", d.MinusDI[n-1])
	}
}

func TestADXFlatSeriesIsZero(t *testing.T) {
	n := 30
	flat := make([]float64, n)
	for i := range flat {
		flat[i] = 5
	}
	for i, v := range ADX(flat, flat, flat, ADXPeriod) {
		if v != 0 {
			t.Fatalf("ADX[%d] = %v, want 0", i, v)
		}
	}
}

func TestSwingLowHighPivotHigh(t *testing.T) {
	n := 50
	high := make([]float64, n)
	low := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 100 - math.Abs(float64(i-30))
		low[i] = high[i] - 5
	}
	sl, sh := SwingLowHigh(high, low, SwingLookback, SwingPivotBars)
	if sh != 100 {
		t.Errorf("swing high = %v, want 100", sh)
	}
	if sl != 75 {
		t.Errorf("swing low = %v, want fallback 75", sl)
	}
}

func TestSwingLowHighPivotLow(t *testing.T) {
	n := 50
	high := make([]float64, n)
	low := make([]float64, n)
	for i := 0; i < n; i++ {
		low[i] = 50 + math.Abs(float64(i-25))
		high[i] = low[i] + 5
	}
	sl, sh := SwingLowHigh(high, low, SwingLookback, SwingPivotBars)
	if sl != 50 {
		t.Errorf("swing low = %v, want 50", sl)
	}
	if sh != 79 {
		t.Errorf("swing high = %v, want fallback 79", sh)
	}
}

func TestFrameUptoMatchesPrefix(t *testing.T) {
	high, low, close := wave(90)
	series := domain.BarSeries{Symbol: "TEST"}
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range high {
		series.Bars = append(series.Bars, domain.Bar{
			Date: day.AddDate(0, 0, i), Open: close[i], High: high[i], Low: low[i],
			Close: close[i], Volume: 1000 + float64(i%7)*100,
		})
	}
	full := NewFrame(series)
	for _, k := range []int{20, 49, 70} {
		pre := NewFrame(domain.BarSeries{Symbol: "TEST", Bars: series.Bars[:k+1]})
		cut := full.Upto(k)
		cols := []struct {
			name string
			a, b []float64
		}{
			{"ema8", pre.EMA8, cut.EMA8},
			{"ema21", pre.EMA21, cut.EMA21},
			{"demarker", pre.DeMarker, cut.DeMarker},
			{"adx", pre.ADX, cut.ADX},
			{"atr", pre.ATR, cut.ATR},
			{"avgvol", pre.AvgVolume, cut.AvgVolume},
		}
		for _, c := range cols {
			if len(c.a) != len(c.b) {
				t.Fatalf("%s: len %d vs %d", c.name, len(c.a), len(c.b))
			}
			for i := range c.a {
				same := c.a[i] == c.b[i] || (math.IsNaN(c.a[i]) && math.IsNaN(c.b[i]))
				if !same {
					t.Fatalf("%s[%d] at k=%d: %v vs %v", c.name, i, k, c.a[i], c.b[i])
				}
			}
		}
	}
}

// An EMA8 read over the last 80 bars must match the full-history EMA8: the
// live trail fetches a short window while the replay holds every bar.
func TestEMA8ForgetsSeedWithinTrailWindow(t *testing.T) {
	const window = 80
	dates := bartest.Weekdays(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 500)
	for seed := uint64(1); seed <= 5; seed++ {
		closes := bartest.Walk("X", seed, dates).Closes()
		full := EMA(closes, 8)
		for i := 200; i < len(closes); i++ {
			short := EMA(closes[i+1-window:i+1], 8)
			if rel := math.Abs(short[window-1]-full[i]) / full[i]; rel > 1e-8 {
				t.Fatalf("seed %d bar %d: windowed %v vs full %v (rel %g)", seed, i, short[window-1], full[i], rel)
			}
		}
	}
}
