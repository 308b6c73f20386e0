package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// EquityStore implements domain.EquityStore. One row per calendar date; a
// later snapshot for the same date replaces the earlier one.
type EquityStore struct {
	pool *pgxpool.Pool
}

var _ domain.EquityStore = (*EquityStore)(nil)

// NewEquityStore creates an EquityStore backed by pool.
func NewEquityStore(pool *pgxpool.Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

func (s *EquityStore) Upsert(ctx context.Context, snap domain.EquitySnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO equity_snapshots (date, cash, positions_value, total_equity, open_positions, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (date) DO UPDATE SET
			cash            = EXCLUDED.cash,
			positions_value = EXCLUDED.positions_value,
			total_equity    = EXCLUDED.total_equity,
			open_positions  = EXCLUDED.open_positions,
			recorded_at     = NOW()`,
		snap.Date, snap.Cash, snap.PositionsValue, snap.TotalEquity, snap.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert equity snapshot %s: %w", snap.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (s *EquityStore) List(ctx context.Context) ([]domain.EquitySnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, cash, positions_value, total_equity, open_positions
		FROM equity_snapshots ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list equity snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.EquitySnapshot
	for rows.Next() {
		var e domain.EquitySnapshot
		if err := rows.Scan(&e.Date, &e.Cash, &e.PositionsValue, &e.TotalEquity, &e.OpenPositions); err != nil {
			return nil, fmt.Errorf("postgres: scan equity snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EquityStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM equity_snapshots`); err != nil {
		return fmt.Errorf("postgres: delete equity snapshots: %w", err)
	}
	return nil
}
