package domain

import "time"

// Action is the direction of an execution.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Trade is an immutable execution record. The trade log is append-only and is
// the source for realized P&L reconstruction.
type Trade struct {
	ID         int64     `json:"id"`
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Shares     int       `json:"shares"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Reason     Reason    `json:"reason"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Gross is shares times price, before commission.
func (t Trade) Gross() float64 {
	return float64(t.Shares) * t.Price
}

// CashDelta is the signed effect of the execution on cash.
func (t Trade) CashDelta() float64 {
	if t.Action == ActionBuy {
		return -(t.Gross() + t.Commission)
	}
	return t.Gross() - t.Commission
}
