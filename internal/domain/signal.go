package domain

import "time"

// Signal is a qualifying pullback-bounce setup on a symbol's latest bar.
// Signals are produced once per detection pass and never mutated.
type Signal struct {
	Symbol         string    `json:"symbol"`
	Date           time.Time `json:"date"`
	Price          float64   `json:"price"`
	EMA8           float64   `json:"ema8"`
	EMA21          float64   `json:"ema21"`
	DeMarker       float64   `json:"demarker"`
	ADX            float64   `json:"adx"`
	ATR            float64   `json:"atr"`
	RelativeVolume float64   `json:"relative_volume"`
	Confidence     int       `json:"confidence"`
	StopPrice      float64   `json:"stop_price"`
	Target1Price   float64   `json:"target1_price"`
	Target2Price   float64   `json:"target2_price"`
	SwingLow       float64   `json:"swing_low"`
	SwingHigh      float64   `json:"swing_high"`
}

// ScanResult is a persisted signal from a batch scan.
type ScanResult struct {
	ID         int64     `json:"id"`
	Signal     Signal    `json:"signal"`
	AutoTraded bool      `json:"auto_traded"`
	PositionID *int64    `json:"position_id,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
}
