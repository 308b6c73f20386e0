package domain

import "time"

// Portfolio is the cash account. Cash is mutated only by executions.
type Portfolio struct {
	Cash         float64   `json:"cash"`
	StartingCash float64   `json:"starting_cash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceSnapshot maps symbol to current price for one request or replay day.
// It is passed explicitly to every calculation that needs a current price.
type PriceSnapshot map[string]float64

// Price returns the snapshot price for symbol, or fallback when absent.
func (s PriceSnapshot) Price(symbol string, fallback float64) float64 {
	if p, ok := s[symbol]; ok && p > 0 {
		return p
	}
	return fallback
}

// Has reports whether the snapshot carries a price for symbol.
func (s PriceSnapshot) Has(symbol string) bool {
	p, ok := s[symbol]
	return ok && p > 0
}

// PortfolioSummary is the marked-to-market view of the account.
type PortfolioSummary struct {
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
	TotalEquity    float64 `json:"total_equity"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	NetPnL         float64 `json:"net_pnl"`
	StartingCash   float64 `json:"starting_cash"`
	OpenPositions  int     `json:"open_positions"`
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	Date           time.Time `json:"date"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalEquity    float64   `json:"total_equity"`
	OpenPositions  int       `json:"open_positions"`
}

// OpenPositionView is an open position enriched with its mark.
type OpenPositionView struct {
	Position
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPct        float64 `json:"pnl_pct"`
}

// JournalEntry is a closed position with its realized result.
type JournalEntry struct {
	Position
	GrossPnL float64 `json:"gross_pnl"`
	NetPnL   float64 `json:"net_pnl"`
	RRRatio  float64 `json:"rr_ratio"`
	Trades   []Trade `json:"trades"`
}

// TradeOutcome is a closed position reduced to its P&L.
type TradeOutcome struct {
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	ClosedAt   time.Time `json:"closed_at"`
}

// PerformanceStats summarizes closed-trade performance.
type PerformanceStats struct {
	TotalTrades    int           `json:"total_trades"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	WinPct         float64       `json:"win_pct"`
	AvgWinPct      float64       `json:"avg_win_pct"`
	AvgLossPct     float64       `json:"avg_loss_pct"`
	GrossWins      float64       `json:"gross_wins"`
	GrossLosses    float64       `json:"gross_losses"`
	ProfitFactor   float64       `json:"profit_factor"`
	NetPnL         float64       `json:"net_pnl"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	MaxDrawdownAt  *time.Time    `json:"max_drawdown_at,omitempty"`
	BestTrade      *TradeOutcome `json:"best_trade,omitempty"`
	WorstTrade     *TradeOutcome `json:"worst_trade,omitempty"`
}
