package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// LedgerStore implements domain.Ledger. Every mutation runs in one
// transaction that first locks the portfolio row, so concurrent writers
// serialize on cash.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore backed by pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const positionSelectCols = `id, symbol, side, initial_shares, shares, entry_price, entry_date,
	stop_price, initial_stop, target1_price, target2_price, target1_hit, state,
	close_price, close_date, close_reason, commission_paid, trailing_stop, notes`

const tradeSelectCols = `id, position_id, symbol, action, shares, price, commission, reason, executed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                    domain.Position
		state                string
		closePrice, trailing *float64
		closeReason          *string
	)
	err := row.Scan(
		&p.ID, &p.Symbol, &p.Side, &p.InitialShares, &p.Shares, &p.EntryPrice, &p.EntryDate,
		&p.StopPrice, &p.InitialStop, &p.Target1Price, &p.Target2Price, &p.Target1Hit, &state,
		&closePrice, &p.CloseDate, &closeReason, &p.CommissionPaid, &trailing, &p.Notes,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.State = domain.PositionState(state)
	if closePrice != nil {
		p.ClosePrice = *closePrice
	}
	if closeReason != nil {
		p.CloseReason = domain.Reason(*closeReason)
	}
	if trailing != nil {
		p.TrailingStop = *trailing
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	defer rows.Close()
	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var action, reason string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Symbol, &action, &t.Shares,
			&t.Price, &t.Commission, &reason, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Action = domain.Action(action)
		t.Reason = domain.Reason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *LedgerStore) Portfolio(ctx context.Context) (domain.Portfolio, error) {
	var pf domain.Portfolio
	err := s.pool.QueryRow(ctx,
		`SELECT cash, starting_cash, updated_at FROM portfolio WHERE id = 1`,
	).Scan(&pf.Cash, &pf.StartingCash, &pf.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.Portfolio{}, domain.ErrNotFound
		}
		return domain.Portfolio{}, fmt.Errorf("postgres: get portfolio: %w", err)
	}
	return pf, nil
}

// lockCash locks the portfolio row for the rest of tx and returns cash.
func lockCash(ctx context.Context, tx pgx.Tx) (float64, error) {
	var cash float64
	err := tx.QueryRow(ctx, `SELECT cash FROM portfolio WHERE id = 1 FOR UPDATE`).Scan(&cash)
	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("postgres: portfolio row missing: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("postgres: lock portfolio: %w", err)
	}
	return cash, nil
}

func applyCash(ctx context.Context, tx pgx.Tx, delta float64, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE portfolio SET cash = cash + $1, updated_at = $2 WHERE id = 1`, delta, at)
	if err != nil {
		return fmt.Errorf("postgres: apply cash delta: %w", err)
	}
	return nil
}

func insertTrade(ctx context.Context, tx pgx.Tx, t domain.Trade) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO trades (position_id, symbol, action, shares, price, commission, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.PositionID, t.Symbol, string(t.Action), t.Shares, t.Price, t.Commission, string(t.Reason), t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s trade %s: %w", t.Action, t.Symbol, err)
	}
	return nil
}

func (s *LedgerStore) OpenPosition(ctx context.Context, pos domain.Position, buy domain.Trade) (domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cash, err := lockCash(ctx, tx)
	if err != nil {
		return domain.Position{}, err
	}
	delta := buy.CashDelta()
	if cash+delta < 0 {
		return domain.Position{}, fmt.Errorf("postgres: open position %s: need %.2f, have %.2f: %w",
			pos.Symbol, -delta, cash, domain.ErrInsufficientCash)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO positions (
			symbol, side, initial_shares, shares, entry_price, entry_date,
			stop_price, initial_stop, target1_price, target2_price, target1_hit,
			state, commission_paid, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		pos.Symbol, pos.Side, pos.InitialShares, pos.Shares, pos.EntryPrice, pos.EntryDate,
		pos.StopPrice, pos.InitialStop, pos.Target1Price, pos.Target2Price, pos.Target1Hit,
		string(pos.State), pos.CommissionPaid, pos.Notes,
	).Scan(&pos.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Position{}, fmt.Errorf("postgres: open position %s: %w", pos.Symbol, domain.ErrAlreadyHeld)
		}
		return domain.Position{}, fmt.Errorf("postgres: open position %s: %w", pos.Symbol, err)
	}

	buy.PositionID = pos.ID
	if err := insertTrade(ctx, tx, buy); err != nil {
		return domain.Position{}, err
	}
	if err := applyCash(ctx, tx, delta, buy.ExecutedAt); err != nil {
		return domain.Position{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: commit open position %s: %w", pos.Symbol, err)
	}
	return pos, nil
}

func (s *LedgerStore) SellFromPosition(ctx context.Context, pos domain.Position, sell domain.Trade) (domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockCash(ctx, tx); err != nil {
		return domain.Position{}, err
	}

	var state string
	var shares int
	err = tx.QueryRow(ctx, `SELECT state, shares FROM positions WHERE id = $1 FOR UPDATE`, pos.ID).Scan(&state, &shares)
	if err != nil {
		if isNoRows(err) {
			return domain.Position{}, fmt.Errorf("postgres: sell position %d: %w", pos.ID, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: lock position %d: %w", pos.ID, err)
	}
	if domain.PositionState(state) == domain.StateClosed {
		return domain.Position{}, fmt.Errorf("postgres: sell position %d: %w", pos.ID, domain.ErrPositionClosed)
	}
	if shares != pos.Shares+sell.Shares {
		return domain.Position{}, fmt.Errorf("postgres: sell position %d: stored %d shares, sell leaves %d of %d: %w",
			pos.ID, shares, pos.Shares, pos.Shares+sell.Shares, domain.ErrStaleState)
	}

	var closePrice *float64
	var closeReason *string
	if pos.CloseDate != nil {
		closePrice = &pos.ClosePrice
		r := string(pos.CloseReason)
		closeReason = &r
	}
	_, err = tx.Exec(ctx, `
		UPDATE positions SET
			shares          = $2,
			stop_price      = $3,
			target1_hit     = $4,
			state           = $5,
			close_price     = $6,
			close_date      = $7,
			close_reason    = $8,
			commission_paid = $9
		WHERE id = $1`,
		pos.ID, pos.Shares, pos.StopPrice, pos.Target1Hit, string(pos.State),
		closePrice, pos.CloseDate, closeReason, pos.CommissionPaid,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: update position %d: %w", pos.ID, err)
	}

	sell.PositionID = pos.ID
	if err := insertTrade(ctx, tx, sell); err != nil {
		return domain.Position{}, err
	}
	if err := applyCash(ctx, tx, sell.CashDelta(), sell.ExecutedAt); err != nil {
		return domain.Position{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: commit sell position %d: %w", pos.ID, err)
	}
	return pos, nil
}

func (s *LedgerStore) UpdateStop(ctx context.Context, positionID int64, stop, trailing float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET stop_price = $2, trailing_stop = $3
		WHERE id = $1 AND state <> 'closed'`, positionID, stop, trailing)
	if err != nil {
		return fmt.Errorf("postgres: update stop %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update stop %d: %w", positionID, domain.ErrNotFound)
	}
	return nil
}

func (s *LedgerStore) GetPosition(ctx context.Context, id int64) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Position{}, fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

func (s *LedgerStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+`
		FROM positions WHERE state <> 'closed' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	return scanPositions(rows)
}

func (s *LedgerStore) ListClosed(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+`
		FROM positions WHERE state = 'closed' ORDER BY close_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	return scanPositions(rows)
}

func (s *LedgerStore) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND executed_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND executed_at < $%d", len(args))
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	return scanTrades(rows)
}

func (s *LedgerStore) PositionTrades(ctx context.Context, positionID int64) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeSelectCols+`
		FROM trades WHERE position_id = $1 ORDER BY id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades of position %d: %w", positionID, err)
	}
	return scanTrades(rows)
}

func (s *LedgerStore) Reset(ctx context.Context, startingCash float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(`TRUNCATE trades, positions RESTART IDENTITY`)
	batch.Queue(`
		INSERT INTO portfolio (id, starting_cash, cash, updated_at) VALUES (1, $1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET starting_cash = $1, cash = $1, updated_at = NOW()`, startingCash)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: reset ledger: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit reset: %w", err)
	}
	return nil
}

// EnsurePortfolio creates the cash account with startingCash unless it
// already exists.
func (s *LedgerStore) EnsurePortfolio(ctx context.Context, startingCash float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolio (id, starting_cash, cash) VALUES (1, $1, $1)
		ON CONFLICT (id) DO NOTHING`, startingCash)
	if err != nil {
		return fmt.Errorf("postgres: ensure portfolio: %w", err)
	}
	return nil
}
