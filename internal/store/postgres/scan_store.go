package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// ScanResultStore implements domain.ScanResultStore over scanner_results.
type ScanResultStore struct {
	pool *pgxpool.Pool
}

var _ domain.ScanResultStore = (*ScanResultStore)(nil)

// NewScanResultStore creates a ScanResultStore backed by pool.
func NewScanResultStore(pool *pgxpool.Pool) *ScanResultStore {
	return &ScanResultStore{pool: pool}
}

const scanSelectCols = `id, symbol, signal_date, price, ema8, ema21, demarker, adx, atr,
	relative_volume, confidence, stop_price, target1_price, target2_price,
	swing_low, swing_high, auto_traded, position_id, scanned_at`

// InsertBatch stores results in one round trip and returns their IDs in
// input order.
func (s *ScanResultStore) InsertBatch(ctx context.Context, results []domain.ScanResult) ([]int64, error) {
	if len(results) == 0 {
		return nil, nil
	}

	const query = `
		INSERT INTO scanner_results (
			symbol, signal_date, price, ema8, ema21, demarker, adx, atr,
			relative_volume, confidence, stop_price, target1_price, target2_price,
			swing_low, swing_high, auto_traded, position_id, scanned_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, COALESCE($18::timestamptz, NOW())
		) RETURNING id`

	batch := &pgx.Batch{}
	for _, r := range results {
		sig := r.Signal
		batch.Queue(query,
			sig.Symbol, sig.Date, sig.Price, sig.EMA8, sig.EMA21, sig.DeMarker, sig.ADX, sig.ATR,
			sig.RelativeVolume, sig.Confidence, sig.StopPrice, sig.Target1Price, sig.Target2Price,
			sig.SwingLow, sig.SwingHigh, r.AutoTraded, r.PositionID, nullTime(r.ScannedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	ids := make([]int64, len(results))
	for i := range results {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("postgres: insert scanner result %s: %w", results[i].Signal.Symbol, err)
		}
	}
	return ids, nil
}

func (s *ScanResultStore) MarkAutoTraded(ctx context.Context, id, positionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scanner_results SET auto_traded = TRUE, position_id = $2 WHERE id = $1`, id, positionID)
	if err != nil {
		return fmt.Errorf("postgres: mark scanner result %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: scanner result %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns up to limit results, newest scan first and highest
// confidence first within a scan.
func (s *ScanResultStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+scanSelectCols+`
		FROM scanner_results ORDER BY scanned_at DESC, confidence DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scanner results: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanResult
	for rows.Next() {
		var r domain.ScanResult
		sig := &r.Signal
		if err := rows.Scan(
			&r.ID, &sig.Symbol, &sig.Date, &sig.Price, &sig.EMA8, &sig.EMA21, &sig.DeMarker, &sig.ADX, &sig.ATR,
			&sig.RelativeVolume, &sig.Confidence, &sig.StopPrice, &sig.Target1Price, &sig.Target2Price,
			&sig.SwingLow, &sig.SwingHigh, &r.AutoTraded, &r.PositionID, &r.ScannedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan scanner result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ScanResultStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scanner_results`); err != nil {
		return fmt.Errorf("postgres: delete scanner results: %w", err)
	}
	return nil
}
