package portfolio

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/num"
)

// Step is one execution produced by exit evaluation: the sell, the position
// state after it, and the action line describing it.
type Step struct {
	Position domain.Position
	Trade    domain.Trade
	Message  string
}

// EvaluateExit applies the exit rules to an open position at price. Rules
// are checked in order and the first match wins:
//
//  1. price at or below the stop closes everything.
//  2. price at or above target 2 closes everything; if target 1 was never
//     taken the missed partial is filled first at the target-1 price.
//  3. price at or above target 1, not yet taken, sells the partial.
//
// A position that matches no rule yields no steps.
func EvaluateExit(p domain.Position, price, commission float64, at time.Time) ([]Step, error) {
	if !p.IsOpen() {
		return nil, nil
	}

	if price <= p.StopPrice {
		s, err := sellStep(p, p.Shares, price, commission, domain.ReasonStop, at,
			"STOP HIT: %s sold %d @ $%.2f")
		if err != nil {
			return nil, err
		}
		return []Step{s}, nil
	}

	if price >= p.Target2Price {
		var steps []Step
		cur := p
		if !cur.Target1Hit {
			s, err := sellStep(cur, PartialShares(cur), cur.Target1Price, commission, domain.ReasonTarget1, at,
				"TARGET 1 HIT (gap): %s sold %d (25%%) @ $%.2f")
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
			cur = s.Position
		}
		if cur.IsOpen() && cur.Shares > 0 {
			s, err := sellStep(cur, cur.Shares, price, commission, domain.ReasonTarget2, at,
				"TARGET 2 HIT: %s sold %d (remaining) @ $%.2f")
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
		return steps, nil
	}

	if !p.Target1Hit && price >= p.Target1Price {
		s, err := sellStep(p, PartialShares(p), price, commission, domain.ReasonTarget1, at,
			"TARGET 1 HIT: %s sold %d (25%%) @ $%.2f")
		if err != nil {
			return nil, err
		}
		return []Step{s}, nil
	}
	return nil, nil
}

func sellStep(p domain.Position, shares int, price, commission float64, reason domain.Reason, at time.Time, format string) (Step, error) {
	next, trade, err := Sell(p, shares, price, commission, reason, at)
	if err != nil {
		return Step{}, err
	}
	return Step{
		Position: next,
		Trade:    trade,
		Message:  fmt.Sprintf(format, p.Symbol, trade.Shares, trade.Price),
	}, nil
}

// Trail computes the ratcheted stop for p from a fresh EMA8 reading. It
// applies only to positions that have taken target 1. ok is false when the
// stop would not rise.
func Trail(p domain.Position, ema8 float64) (next domain.Position, message string, ok bool) {
	if !p.IsOpen() || !p.Target1Hit || !(ema8 > 0) {
		return p, "", false
	}
	candidate := num.Price(ema8 * TrailBuffer)
	if candidate <= p.StopPrice {
		return p, "", false
	}
	next = p
	next.StopPrice = candidate
	next.TrailingStop = candidate
	return next, fmt.Sprintf("TRAIL: %s stop raised $%.2f → $%.2f (8 EMA)", p.Symbol, p.StopPrice, candidate), true
}
