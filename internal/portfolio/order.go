// Package portfolio holds the pure position and order rules: sizing, entry
// planning, the position state machine, exit evaluation, the trailing-stop
// ratchet and valuation. Nothing here touches storage; callers persist the
// positions and trades these functions return.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// Fixed exit parameters.
const (
	PartialFraction = 0.25
	TrailBuffer     = 0.995
)

// Size returns the share count that risks riskPct of equity between entry and
// stop, shrunk to what cash can cover including a round-trip commission.
func Size(equity, cash, riskPct, entry, stop, commission float64) int {
	riskPerShare := entry - stop
	if riskPerShare <= 0 {
		return 0
	}
	shares := num.FloorInt(equity * riskPct / riskPerShare)
	if float64(shares)*entry+2*commission > cash {
		shares = num.FloorInt((cash - 2*commission) / entry)
	}
	return max(shares, 0)
}

// Book is the account state an entry is planned against.
type Book struct {
	Equity float64
	Cash   float64
	Open   []domain.Position
	At     time.Time
}

func (b Book) holds(symbol string) bool {
	for _, p := range b.Open {
		if p.Symbol == symbol && p.IsOpen() {
			return true
		}
	}
	return false
}

// Order is a validated buy: the position to create and its buy execution.
type Order struct {
	Position domain.Position
	Trade    domain.Trade
}

// PlanEntry validates sig against the book and settings and sizes the buy.
// Any failed precondition returns a rejection error and no order.
func PlanEntry(sig domain.Signal, s domain.Settings, b Book) (Order, error) {
	if len(b.Open) >= s.MaxPositions {
		return Order{}, fmt.Errorf("%w (%d)", domain.ErrMaxPositions, s.MaxPositions)
	}
	if b.holds(sig.Symbol) {
		return Order{}, fmt.Errorf("%w: %s", domain.ErrAlreadyHeld, sig.Symbol)
	}
	entry := num.Price(sig.Price * (1 + s.SlippagePct))
	if err := checkLevels(sig.Symbol, entry, sig.StopPrice, sig.Target1Price, sig.Target2Price); err != nil {
		return Order{}, err
	}
	shares := Size(b.Equity, b.Cash, s.RiskPct, entry, sig.StopPrice, s.Commission)
	if shares <= 0 {
		return Order{}, fmt.Errorf("%w: %s entry=%.3f stop=%.3f equity=%.0f",
			domain.ErrZeroSize, sig.Symbol, entry, sig.StopPrice, b.Equity)
	}
	return newOrder(sig.Symbol, shares, entry, sig.StopPrice, sig.Target1Price, sig.Target2Price,
		s.Commission, domain.ReasonSignal, b.At), nil
}

// ManualEntry describes an operator-entered buy.
type ManualEntry struct {
	Symbol  string
	Price   float64
	Stop    float64
	Target1 float64
	Target2 float64
	// Shares, when positive, bypasses risk sizing.
	Shares int
	Notes  string
}

// PlanManual validates a manual buy at an explicit share count. The fill is at
// Price with no slippage.
func PlanManual(m ManualEntry, commission float64, b Book) (Order, error) {
	if m.Price <= 0 {
		return Order{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidLevels)
	}
	if err := checkLevels(m.Symbol, m.Price, m.Stop, m.Target1, m.Target2); err != nil {
		return Order{}, err
	}
	if m.Shares <= 0 {
		return Order{}, fmt.Errorf("%w: shares must be positive", domain.ErrZeroSize)
	}
	if b.holds(m.Symbol) {
		return Order{}, fmt.Errorf("%w: %s", domain.ErrAlreadyHeld, m.Symbol)
	}
	cost := float64(m.Shares)*m.Price + commission
	if cost > b.Cash {
		return Order{}, fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientCash, cost, b.Cash)
	}
	o := newOrder(m.Symbol, m.Shares, m.Price, m.Stop, m.Target1, m.Target2, commission, domain.ReasonManual, b.At)
	o.Position.Notes = m.Notes
	return o, nil
}

// CheckLevels validates stop < entry < target1 < target2.
func CheckLevels(entry, stop, target1, target2 float64) error {
	return checkLevels("", entry, stop, target1, target2)
}

func checkLevels(symbol string, entry, stop, target1, target2 float64) error {
	if stop >= entry {
		return fmt.Errorf("%w: %s stop %.3f >= entry %.3f", domain.ErrInvalidLevels, symbol, stop, entry)
	}
	if target1 <= entry || target2 <= target1 {
		return fmt.Errorf("%w: %s entry=%.3f t1=%.3f t2=%.3f", domain.ErrInvalidLevels, symbol, entry, target1, target2)
	}
	return nil
}

func newOrder(symbol string, shares int, entry, stop, t1, t2, commission float64, reason domain.Reason, at time.Time) Order {
	return Order{
		Position: domain.Position{
			Symbol:         symbol,
			Side:           domain.SideLong,
			InitialShares:  shares,
			Shares:         shares,
			EntryPrice:     entry,
			EntryDate:      at,
			StopPrice:      stop,
			InitialStop:    stop,
			Target1Price:   t1,
			Target2Price:   t2,
			State:          domain.StateOpen,
			CommissionPaid: commission,
		},
		Trade: domain.Trade{
			Symbol:     symbol,
			Action:     domain.ActionBuy,
			Shares:     shares,
			Price:      entry,
			Commission: commission,
			Reason:     reason,
			ExecutedAt: at,
		},
	}
}

// Sell applies a sell of shares at price to p and returns the new position
// and the execution record. The request is capped at the remaining shares.
// Selling the last share closes the position; a target-1 partial that leaves
// shares marks the target hit and lifts the stop to at least breakeven.
func Sell(p domain.Position, shares int, price, commission float64, reason domain.Reason, at time.Time) (domain.Position, domain.Trade, error) {
	if !p.IsOpen() || p.Shares <= 0 {
		return p, domain.Trade{}, fmt.Errorf("%w: %s #%d", domain.ErrPositionClosed, p.Symbol, p.ID)
	}
	shares = min(shares, p.Shares)
	if shares <= 0 {
		return p, domain.Trade{}, fmt.Errorf("%w: sell of %d shares", domain.ErrZeroSize, shares)
	}

	next := p
	next.Shares -= shares
	next.CommissionPaid += commission
	switch {
	case next.Shares == 0:
		closedAt := at
		next.State = domain.StateClosed
		next.ClosePrice = price
		next.CloseDate = &closedAt
		next.CloseReason = reason
	case reason == domain.ReasonTarget1:
		next.Target1Hit = true
		next.State = domain.StatePartial
		next.StopPrice = math.Max(next.StopPrice, next.EntryPrice)
	}

	return next, domain.Trade{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Action:     domain.ActionSell,
		Shares:     shares,
		Price:      price,
		Commission: commission,
		Reason:     reason,
		ExecutedAt: at,
	}, nil
}

// PartialShares is the target-1 exit size: a quarter of the initial shares,
// at least one, never more than what remains.
func PartialShares(p domain.Position) int {
	n := max(1, int(math.Round(PartialFraction*float64(p.InitialShares))))
	return min(n, p.Shares)
}
