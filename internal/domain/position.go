package domain

import "time"

// PositionState is the tagged lifecycle state of a position.
type PositionState string

const (
	// StateOpen is an open position whose first target has not been taken.
	StateOpen PositionState = "open"
	// StatePartial is an open position after the target-1 partial exit; its
	// stop sits at breakeven or higher.
	StatePartial PositionState = "partial"
	StateClosed  PositionState = "closed"
)

// Reason tags why an execution happened.
type Reason string

const (
	ReasonSignal      Reason = "signal"
	ReasonManual      Reason = "manual"
	ReasonStop        Reason = "stop"
	ReasonTarget1     Reason = "target1_partial"
	ReasonTarget2     Reason = "target2"
	ReasonBacktestEnd Reason = "backtest_end"
)

var reasonLabels = map[Reason]string{
	ReasonSignal:      "signal",
	ReasonManual:      "manual",
	ReasonStop:        "STOP",
	ReasonTarget1:     "T1 (25% out)",
	ReasonTarget2:     "T2 (remaining)",
	ReasonBacktestEnd: "backtest end",
}

// Label is the display form of the reason used in trade journals.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return string(r)
}

// ParseReason maps a stored or user-supplied reason string to a Reason.
func ParseReason(s string) (Reason, bool) {
	r := Reason(s)
	_, ok := reasonLabels[r]
	return r, ok
}

// SideLong is the only supported side.
const SideLong = "long"

// Position is a long equity holding. The zero CloseDate means still open.
type Position struct {
	ID             int64         `json:"id"`
	Symbol         string        `json:"symbol"`
	Side           string        `json:"side"`
	InitialShares  int           `json:"initial_shares"`
	Shares         int           `json:"shares"`
	EntryPrice     float64       `json:"entry_price"`
	EntryDate      time.Time     `json:"entry_date"`
	StopPrice      float64       `json:"stop_price"`
	InitialStop    float64       `json:"initial_stop"`
	Target1Price   float64       `json:"target1_price"`
	Target2Price   float64       `json:"target2_price"`
	Target1Hit     bool          `json:"target1_hit"`
	State          PositionState `json:"state"`
	ClosePrice     float64       `json:"close_price,omitempty"`
	CloseDate      *time.Time    `json:"close_date,omitempty"`
	CloseReason    Reason        `json:"close_reason,omitempty"`
	CommissionPaid float64       `json:"commission_paid"`
	TrailingStop   float64       `json:"trailing_stop,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

// IsOpen reports whether the position still holds shares.
func (p Position) IsOpen() bool { return p.State != StateClosed }

// Status is the coarse open/closed view of State.
func (p Position) Status() string {
	if p.IsOpen() {
		return "open"
	}
	return "closed"
}

// RiskPerShare is the distance from entry to the stop at entry time.
func (p Position) RiskPerShare() float64 {
	return p.EntryPrice - p.InitialStop
}
