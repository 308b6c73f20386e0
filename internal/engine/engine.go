// Package engine is the stateful half of the decision logic. It drives the
// pure rules in strategy, portfolio and risk against a domain.Ledger. The
// live trade cycle and the backtest replay both run through the same Engine,
// so a decision taken in one is taken identically in the other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/num"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/risk"
)

// Engine applies entries, exits and stop updates to a ledger.
type Engine struct {
	ledger   domain.Ledger
	notifier domain.Notifier
	logger   *slog.Logger
}

// New creates an Engine. notifier may be nil, in which case action lines are
// only logged.
func New(ledger domain.Ledger, notifier domain.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Ledger returns the ledger the engine mutates.
func (e *Engine) Ledger() domain.Ledger { return e.ledger }

func (e *Engine) emit(ctx context.Context, level, msg string) {
	switch level {
	case domain.LevelWarning:
		e.logger.WarnContext(ctx, msg)
	case domain.LevelError:
		e.logger.ErrorContext(ctx, msg)
	default:
		e.logger.InfoContext(ctx, msg)
	}
	if e.notifier != nil {
		e.notifier.Emit(ctx, level, msg)
	}
}

// Book reads the account state and marks open positions at prices. The
// returned equity is unrounded and is what sizing uses.
func (e *Engine) Book(ctx context.Context, prices domain.PriceSnapshot, at time.Time) (portfolio.Book, error) {
	pf, err := e.ledger.Portfolio(ctx)
	if err != nil {
		return portfolio.Book{}, fmt.Errorf("engine: read portfolio: %w", err)
	}
	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return portfolio.Book{}, fmt.Errorf("engine: list open: %w", err)
	}
	return portfolio.Book{
		Equity: portfolio.Equity(pf, open, prices),
		Cash:   pf.Cash,
		Open:   open,
		At:     at,
	}, nil
}

// Summary returns the rounded mark-to-market view of the account.
func (e *Engine) Summary(ctx context.Context, prices domain.PriceSnapshot) (domain.PortfolioSummary, error) {
	pf, err := e.ledger.Portfolio(ctx)
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("engine: read portfolio: %w", err)
	}
	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("engine: list open: %w", err)
	}
	return portfolio.Summarize(pf, open, prices), nil
}

// Enter sizes and opens a position for sig. Rejections come back as errors
// matching domain.IsRejection and leave the ledger untouched.
func (e *Engine) Enter(ctx context.Context, sig domain.Signal, s domain.Settings, prices domain.PriceSnapshot, at time.Time) (domain.Position, error) {
	book, err := e.Book(ctx, prices, at)
	if err != nil {
		return domain.Position{}, err
	}
	order, err := portfolio.PlanEntry(sig, s, book)
	if err != nil {
		return domain.Position{}, err
	}
	pos, err := e.ledger.OpenPosition(ctx, order.Position, order.Trade)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: open %s: %w", sig.Symbol, err)
	}
	e.logger.InfoContext(ctx, "position opened",
		slog.String("symbol", pos.Symbol),
		slog.Int("shares", pos.Shares),
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("stop", pos.StopPrice),
		slog.Float64("target1", pos.Target1Price),
		slog.Float64("target2", pos.Target2Price),
	)
	return pos, nil
}

// Entry pairs a ranked signal with the position it opened.
type Entry struct {
	Index    int
	Signal   domain.Signal
	Position domain.Position
}

// EnterAll attempts a buy for every signal at or above the minimum score, in
// the order given. Callers pass signals already ranked by confidence. The
// book is re-read before each attempt so later buys see the cash and
// position count left by earlier ones. Rejections are logged and skipped.
func (e *Engine) EnterAll(ctx context.Context, signals []domain.Signal, s domain.Settings, prices domain.PriceSnapshot, at time.Time) ([]Entry, error) {
	var entries []Entry
	for i, sig := range signals {
		if sig.Confidence < s.MinSignalScore {
			continue
		}
		pos, err := e.Enter(ctx, sig, s, prices, at)
		if err != nil {
			if domain.IsRejection(err) {
				e.logger.WarnContext(ctx, "entry rejected",
					slog.String("symbol", sig.Symbol),
					slog.Int("confidence", sig.Confidence),
					slog.String("reason", err.Error()),
				)
				continue
			}
			return entries, err
		}
		entries = append(entries, Entry{Index: i, Signal: sig, Position: pos})
		e.emit(ctx, domain.LevelInfo, fmt.Sprintf("Bought %s @ $%.2f (score %d)", pos.Symbol, pos.EntryPrice, sig.Confidence))
	}
	return entries, nil
}

// EnterManual opens an operator-entered position. With a share count the
// fill is at the given price; without one the entry goes through the same
// risk sizing and slippage as a signal.
func (e *Engine) EnterManual(ctx context.Context, m portfolio.ManualEntry, s domain.Settings, prices domain.PriceSnapshot, at time.Time) (domain.Position, error) {
	book, err := e.Book(ctx, prices, at)
	if err != nil {
		return domain.Position{}, err
	}
	var order portfolio.Order
	if m.Shares > 0 {
		order, err = portfolio.PlanManual(m, s.Commission, book)
	} else {
		sig := domain.Signal{
			Symbol: m.Symbol, Date: at, Price: m.Price,
			StopPrice: m.Stop, Target1Price: m.Target1, Target2Price: m.Target2,
		}
		order, err = portfolio.PlanEntry(sig, s, book)
		if err == nil {
			order.Trade.Reason = domain.ReasonManual
			order.Position.Notes = m.Notes
		}
	}
	if err != nil {
		return domain.Position{}, err
	}
	pos, err := e.ledger.OpenPosition(ctx, order.Position, order.Trade)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: manual open %s: %w", m.Symbol, err)
	}
	e.emit(ctx, domain.LevelInfo, fmt.Sprintf("Manual buy %s: %d @ $%.2f", pos.Symbol, pos.Shares, pos.EntryPrice))
	return pos, nil
}

// Sell sells shares of a position at price. shares <= 0 sells everything
// that remains.
func (e *Engine) Sell(ctx context.Context, positionID int64, shares int, price float64, reason domain.Reason, commission float64, at time.Time) (domain.Position, error) {
	pos, err := e.ledger.GetPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: get position %d: %w", positionID, err)
	}
	if shares <= 0 {
		shares = pos.Shares
	}
	next, trade, err := portfolio.Sell(pos, shares, price, commission, reason, at)
	if err != nil {
		return domain.Position{}, err
	}
	stored, err := e.ledger.SellFromPosition(ctx, next, trade)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: sell %s: %w", pos.Symbol, err)
	}
	e.emit(ctx, domain.LevelInfo, fmt.Sprintf("SELL %s: %d @ $%.2f (%s)", pos.Symbol, trade.Shares, price, reason))
	return stored, nil
}

// UpdateTrailingStops ratchets the stop of every position that has taken
// target 1 up to its EMA8 trail. Symbols missing from ema8 are left alone.
func (e *Engine) UpdateTrailingStops(ctx context.Context, ema8 map[string]float64) ([]string, error) {
	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list open: %w", err)
	}
	var actions []string
	for _, p := range open {
		v, ok := ema8[p.Symbol]
		if !ok {
			continue
		}
		next, msg, ok := portfolio.Trail(p, v)
		if !ok {
			continue
		}
		if err := e.ledger.UpdateStop(ctx, p.ID, next.StopPrice, next.TrailingStop); err != nil {
			return actions, fmt.Errorf("engine: trail %s: %w", p.Symbol, err)
		}
		actions = append(actions, msg)
		e.emit(ctx, domain.LevelInfo, msg)
	}
	return actions, nil
}

// CheckExits evaluates the exit rules for every open position whose symbol
// has a price in the snapshot, persisting each resulting sell in order.
func (e *Engine) CheckExits(ctx context.Context, prices domain.PriceSnapshot, commission float64, at time.Time) ([]string, error) {
	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list open: %w", err)
	}
	var actions []string
	for _, p := range open {
		if !prices.Has(p.Symbol) {
			continue
		}
		steps, err := portfolio.EvaluateExit(p, prices[p.Symbol], commission, at)
		if err != nil {
			return actions, fmt.Errorf("engine: exit %s: %w", p.Symbol, err)
		}
		for _, st := range steps {
			if _, err := e.ledger.SellFromPosition(ctx, st.Position, st.Trade); err != nil {
				if errors.Is(err, domain.ErrPositionClosed) {
					e.logger.WarnContext(ctx, "exit skipped", slog.String("symbol", p.Symbol), slog.String("error", err.Error()))
					break
				}
				return actions, fmt.Errorf("engine: exit %s: %w", p.Symbol, err)
			}
			actions = append(actions, st.Message)
			e.emit(ctx, domain.LevelInfo, st.Message)
		}
	}
	return actions, nil
}

// CheckBreaker evaluates the circuit breaker over the executions in
// [dayStart, dayEnd) with equity marked at prices.
func (e *Engine) CheckBreaker(ctx context.Context, s domain.Settings, prices domain.PriceSnapshot, dayStart, dayEnd time.Time) (risk.Breaker, error) {
	pf, err := e.ledger.Portfolio(ctx)
	if err != nil {
		return risk.Breaker{}, fmt.Errorf("engine: read portfolio: %w", err)
	}
	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return risk.Breaker{}, fmt.Errorf("engine: list open: %w", err)
	}
	today, err := e.ledger.ListTrades(ctx, domain.ListOpts{Since: &dayStart, Until: &dayEnd})
	if err != nil {
		return risk.Breaker{}, fmt.Errorf("engine: list trades: %w", err)
	}
	equity := num.Money(portfolio.Equity(pf, open, prices))
	return risk.CheckBreaker(pf.StartingCash, equity, today, risk.LimitsFrom(s)), nil
}

// Snapshot records the account's marked equity for date.
func (e *Engine) Snapshot(ctx context.Context, prices domain.PriceSnapshot, date time.Time) (domain.EquitySnapshot, error) {
	sum, err := e.Summary(ctx, prices)
	if err != nil {
		return domain.EquitySnapshot{}, err
	}
	return domain.EquitySnapshot{
		Date:           date,
		Cash:           sum.Cash,
		PositionsValue: sum.PositionsValue,
		TotalEquity:    sum.TotalEquity,
		OpenPositions:  sum.OpenPositions,
	}, nil
}
