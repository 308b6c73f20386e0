package num

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in     float64
		places int32
		want   float64
	}{
		{49.9505, 3, 49.951},
		{45.0, 3, 45.0},
		{0.123456, 4, 0.1235},
		{25.04, 1, 25.0},
		{-1.005, 2, -1.01},
		{1.5, 0, 2},
	}
	for _, tt := range tests {
		if got := Round(tt.in, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
}

func TestRoundNaN(t *testing.T) {
	if got := Round(math.NaN(), 3); !math.IsNaN(got) {
		t.Fatalf("Round(NaN) = %v, want NaN", got)
	}
	if got := Round(math.Inf(1), 3); !math.IsInf(got, 1) {
		t.Fatalf("Round(+Inf) = %v, want +Inf", got)
	}
}

func TestFloorInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{600.0, 600},
		{599.999, 599},
		{-3, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := FloorInt(tt.in); got != tt.want {
			t.Errorf("FloorInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
