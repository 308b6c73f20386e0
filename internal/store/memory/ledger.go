// Package memory implements the ledger in process memory. The replay engine
// runs against it, and so do tests of anything built on domain.Ledger. IDs
// are assigned sequentially from 1 so replays are reproducible.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Ledger is a mutex-guarded domain.Ledger.
type Ledger struct {
	mu        sync.RWMutex
	portfolio domain.Portfolio
	positions map[int64]domain.Position
	trades    []domain.Trade
	nextPos   int64
	nextTrade int64
}

var _ domain.Ledger = (*Ledger)(nil)

// NewLedger returns an empty ledger holding startingCash.
func NewLedger(startingCash float64) *Ledger {
	l := &Ledger{}
	l.reset(startingCash)
	return l
}

func (l *Ledger) reset(startingCash float64) {
	l.portfolio = domain.Portfolio{Cash: startingCash, StartingCash: startingCash}
	l.positions = make(map[int64]domain.Position)
	l.trades = nil
	l.nextPos = 0
	l.nextTrade = 0
}

func (l *Ledger) Portfolio(_ context.Context) (domain.Portfolio, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolio, nil
}

func (l *Ledger) OpenPosition(_ context.Context, pos domain.Position, buy domain.Trade) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.positions {
		if p.Symbol == pos.Symbol && p.IsOpen() {
			return domain.Position{}, fmt.Errorf("memory: open %s: %w", pos.Symbol, domain.ErrAlreadyHeld)
		}
	}
	delta := buy.CashDelta()
	if l.portfolio.Cash+delta < 0 {
		return domain.Position{}, fmt.Errorf("memory: open %s: need %.2f, have %.2f: %w",
			pos.Symbol, -delta, l.portfolio.Cash, domain.ErrInsufficientCash)
	}

	l.nextPos++
	pos.ID = l.nextPos
	l.positions[pos.ID] = pos

	buy.PositionID = pos.ID
	l.appendTrade(buy)
	l.portfolio.Cash += delta
	l.portfolio.UpdatedAt = buy.ExecutedAt
	return pos, nil
}

func (l *Ledger) SellFromPosition(_ context.Context, pos domain.Position, sell domain.Trade) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.positions[pos.ID]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: sell position %d: %w", pos.ID, domain.ErrNotFound)
	}
	if !stored.IsOpen() {
		return domain.Position{}, fmt.Errorf("memory: sell position %d: %w", pos.ID, domain.ErrPositionClosed)
	}
	if stored.Shares != pos.Shares+sell.Shares {
		return domain.Position{}, fmt.Errorf("memory: sell position %d: stored %d shares, sell leaves %d of %d: %w",
			pos.ID, stored.Shares, pos.Shares, pos.Shares+sell.Shares, domain.ErrStaleState)
	}

	l.positions[pos.ID] = pos
	sell.PositionID = pos.ID
	l.appendTrade(sell)
	l.portfolio.Cash += sell.CashDelta()
	l.portfolio.UpdatedAt = sell.ExecutedAt
	return pos, nil
}

func (l *Ledger) appendTrade(t domain.Trade) {
	l.nextTrade++
	t.ID = l.nextTrade
	l.trades = append(l.trades, t)
}

func (l *Ledger) UpdateStop(_ context.Context, positionID int64, stop, trailing float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[positionID]
	if !ok {
		return fmt.Errorf("memory: update stop %d: %w", positionID, domain.ErrNotFound)
	}
	if !p.IsOpen() {
		return fmt.Errorf("memory: update stop %d: %w", positionID, domain.ErrPositionClosed)
	}
	p.StopPrice = stop
	p.TrailingStop = trailing
	l.positions[positionID] = p
	return nil
}

func (l *Ledger) GetPosition(_ context.Context, id int64) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (l *Ledger) ListOpen(_ context.Context) ([]domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Position) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (l *Ledger) ListClosed(_ context.Context) ([]domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Position
	for _, p := range l.positions {
		if !p.IsOpen() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		if a.CloseDate != nil && b.CloseDate != nil {
			if c := b.CloseDate.Compare(*a.CloseDate); c != 0 {
				return c
			}
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (l *Ledger) ListTrades(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Trade
	for _, t := range l.trades {
		if opts.Since != nil && t.ExecutedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !t.ExecutedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, t)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return slices.Clone(out), nil
}

func (l *Ledger) PositionTrades(_ context.Context, positionID int64) ([]domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Trade
	for _, t := range l.trades {
		if t.PositionID == positionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *Ledger) Reset(_ context.Context, startingCash float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset(startingCash)
	return nil
}
