package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Setting keys understood by the settings store.
const (
	SettingAutoTrade           = "auto_trade"
	SettingScanIntervalMinutes = "scan_interval_minutes"
	SettingRiskPct             = "risk_pct"
	SettingCommission          = "commission"
	SettingMaxPositions        = "max_positions"
	SettingMinSignalScore      = "min_signal_score"
	SettingMaxDrawdownPct      = "max_drawdown_pct"
	SettingDailyLossLimitPct   = "daily_loss_limit_pct"
	SettingSlippagePct         = "slippage_pct"
	SettingTrailingStopEnabled = "trailing_stop_enabled"
)

// SettingKeys lists every known key in display order.
var SettingKeys = []string{
	SettingAutoTrade,
	SettingScanIntervalMinutes,
	SettingRiskPct,
	SettingCommission,
	SettingMaxPositions,
	SettingMinSignalScore,
	SettingMaxDrawdownPct,
	SettingDailyLossLimitPct,
	SettingSlippagePct,
	SettingTrailingStopEnabled,
}

// Settings are the runtime trading parameters. They are read fresh at the
// start of every live cycle and fixed for the whole of a replay.
type Settings struct {
	AutoTrade           bool    `json:"auto_trade"`
	ScanIntervalMinutes int     `json:"scan_interval_minutes"`
	RiskPct             float64 `json:"risk_pct"`
	Commission          float64 `json:"commission"`
	MaxPositions        int     `json:"max_positions"`
	MinSignalScore      int     `json:"min_signal_score"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	DailyLossLimitPct   float64 `json:"daily_loss_limit_pct"`
	SlippagePct         float64 `json:"slippage_pct"`
	TrailingStopEnabled bool    `json:"trailing_stop_enabled"`
}

// DefaultSettings returns the stock trading parameters.
func DefaultSettings() Settings {
	return Settings{
		AutoTrade:           true,
		ScanIntervalMinutes: 60,
		RiskPct:             0.02,
		Commission:          10.0,
		MaxPositions:        10,
		MinSignalScore:      30,
		MaxDrawdownPct:      10.0,
		DailyLossLimitPct:   3.0,
		SlippagePct:         0.001,
		TrailingStopEnabled: true,
	}
}

// Set parses raw and assigns it to the field named by key. Unknown keys and
// out-of-range values return ErrInvalidSetting.
func (s *Settings) Set(key, raw string) error {
	raw = strings.TrimSpace(raw)
	bad := func(why string) error {
		return fmt.Errorf("%w: %s=%q: %s", ErrInvalidSetting, key, raw, why)
	}
	switch key {
	case SettingAutoTrade, SettingTrailingStopEnabled:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return bad("want true or false")
		}
		if key == SettingAutoTrade {
			s.AutoTrade = b
		} else {
			s.TrailingStopEnabled = b
		}
	case SettingScanIntervalMinutes, SettingMaxPositions, SettingMinSignalScore:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return bad("want an integer")
		}
		switch key {
		case SettingScanIntervalMinutes:
			if n < 1 {
				return bad("must be >= 1")
			}
			s.ScanIntervalMinutes = n
		case SettingMaxPositions:
			if n < 1 {
				return bad("must be >= 1")
			}
			s.MaxPositions = n
		default:
			if n < 0 || n > 100 {
				return bad("must be within 0-100")
			}
			s.MinSignalScore = n
		}
	case SettingRiskPct, SettingCommission, SettingMaxDrawdownPct,
		SettingDailyLossLimitPct, SettingSlippagePct:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bad("want a number")
		}
		switch key {
		case SettingRiskPct:
			if f <= 0 || f > 1 {
				return bad("must be within (0, 1]")
			}
			s.RiskPct = f
		case SettingCommission:
			if f < 0 {
				return bad("must be >= 0")
			}
			s.Commission = f
		case SettingMaxDrawdownPct:
			if f <= 0 {
				return bad("must be > 0")
			}
			s.MaxDrawdownPct = f
		case SettingDailyLossLimitPct:
			if f <= 0 {
				return bad("must be > 0")
			}
			s.DailyLossLimitPct = f
		default:
			if f < 0 || f >= 1 {
				return bad("must be within [0, 1)")
			}
			s.SlippagePct = f
		}
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	return nil
}

// Get returns the string form of the setting named by key.
func (s Settings) Get(key string) (string, bool) {
	switch key {
	case SettingAutoTrade:
		return strconv.FormatBool(s.AutoTrade), true
	case SettingScanIntervalMinutes:
		return strconv.Itoa(s.ScanIntervalMinutes), true
	case SettingRiskPct:
		return strconv.FormatFloat(s.RiskPct, 'f', -1, 64), true
	case SettingCommission:
		return strconv.FormatFloat(s.Commission, 'f', -1, 64), true
	case SettingMaxPositions:
		return strconv.Itoa(s.MaxPositions), true
	case SettingMinSignalScore:
		return strconv.Itoa(s.MinSignalScore), true
	case SettingMaxDrawdownPct:
		return strconv.FormatFloat(s.MaxDrawdownPct, 'f', -1, 64), true
	case SettingDailyLossLimitPct:
		return strconv.FormatFloat(s.DailyLossLimitPct, 'f', -1, 64), true
	case SettingSlippagePct:
		return strconv.FormatFloat(s.SlippagePct, 'f', -1, 64), true
	case SettingTrailingStopEnabled:
		return strconv.FormatBool(s.TrailingStopEnabled), true
	}
	return "", false
}

// Values returns every setting in string form keyed by name.
func (s Settings) Values() map[string]string {
	out := make(map[string]string, len(SettingKeys))
	for _, k := range SettingKeys {
		v, _ := s.Get(k)
		out[k] = v
	}
	return out
}
