package strategy

// ScoreInputs are the measurements a confidence score is built from. The Has*
// flags mark components that are undefined and therefore contribute nothing.
type ScoreInputs struct {
	RelVolume    float64
	HasVolume    bool
	ADX          float64
	EMASpreadPct float64
	HasSpread    bool
	RewardRisk   float64
	HasRisk      bool
	DeMarker     float64
}

// Score returns the 0-100 confidence of a setup. It starts at 50 and sums
// independent adjustments, then clamps.
func Score(in ScoreInputs) int {
	score := 50

	if in.HasVolume {
		switch {
		case in.RelVolume > 1.5:
			score += 15
		case in.RelVolume >= 1.0:
			score += 5
		case in.RelVolume < 0.8:
			score -= 15
		}
	}

	switch {
	case in.ADX > 30:
		score += 12
	case in.ADX >= 25:
		score += 6
	case in.ADX < 20:
		score -= 10
	}

	if in.HasSpread {
		switch {
		case in.EMASpreadPct > 2:
			score += 8
		case in.EMASpreadPct >= 1:
			score += 4
		case in.EMASpreadPct < 0.3:
			score -= 5
		}
	}

	if in.HasRisk {
		switch {
		case in.RewardRisk >= 3:
			score += 10
		case in.RewardRisk >= 2:
			score += 5
		case in.RewardRisk < 1.5:
			score -= 10
		}
	}

	switch {
	case in.DeMarker < 0.25:
		score += 5
	case in.DeMarker > 0.5:
		score -= 5
	}

	return max(0, min(100, score))
}
