package domain

import "time"

// Regime is the broad market trend read from an index.
type Regime string

const (
	RegimeBull    Regime = "BULL"
	RegimeBear    Regime = "BEAR"
	RegimeMixed   Regime = "MIXED"
	RegimeUnknown Regime = "UNKNOWN"
)

// RegimeReading is the result of one regime evaluation.
type RegimeReading struct {
	Regime Regime    `json:"regime"`
	Index  string    `json:"index"`
	Price  float64   `json:"price,omitempty"`
	EMA50  float64   `json:"ema50,omitempty"`
	EMA200 float64   `json:"ema200,omitempty"`
	At     time.Time `json:"at"`
}

// BlocksEntries reports whether the regime pauses new entries. Only an
// explicit bear reading blocks; unknown does not.
func (r RegimeReading) BlocksEntries() bool {
	return r.Regime == RegimeBear
}
