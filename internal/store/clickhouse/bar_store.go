// Package clickhouse archives daily bars in a ReplacingMergeTree table so
// repeated backtests and scanner fallbacks do not refetch history.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Config holds connection parameters for the archive.
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// BarStore implements domain.BarArchive.
type BarStore struct {
	conn  clickhouse.Conn
	table string
}

var _ domain.BarArchive = (*BarStore)(nil)

// Open connects, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*BarStore, error) {
	if cfg.Database == "" {
		cfg.Database = "swingbot"
	}
	if cfg.Table == "" {
		cfg.Table = "daily_bars"
	}
	if !identRe.MatchString(cfg.Database) || !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse: invalid database or table name %q.%q", cfg.Database, cfg.Table)
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}
	s := &BarStore{conn: conn, table: cfg.Database + "." + cfg.Table}
	if err := s.ensureSchema(ctx, cfg.Database); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *BarStore) ensureSchema(ctx context.Context, database string) error {
	if err := s.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
		return fmt.Errorf("clickhouse: create database: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, date)`, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("clickhouse: create table: %w", err)
	}
	return nil
}

// SaveBars appends series in one batch. Rows for an existing (symbol, date)
// are replaced at merge time by the newest version.
func (s *BarStore) SaveBars(ctx context.Context, series domain.BarSeries) error {
	if series.Empty() {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch %s: %w", series.Symbol, err)
	}
	ver := uint64(time.Now().UnixNano())
	for _, b := range series.Bars {
		if err := batch.Append(series.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, ver); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("clickhouse: append %s: %w", series.Symbol, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send %s: %w", series.Symbol, err)
	}
	return nil
}

// LoadBars returns the archived bars for symbol within [start, end] in date
// order.
func (s *BarStore) LoadBars(ctx context.Context, symbol string, start, end time.Time) (domain.BarSeries, error) {
	q := "SELECT date, open, high, low, close, volume FROM " + s.table +
		" FINAL WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date"
	rows, err := s.conn.Query(ctx, q, symbol, start, end)
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("clickhouse: load %s: %w", symbol, err)
	}
	defer rows.Close()

	out := domain.BarSeries{Symbol: symbol}
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return domain.BarSeries{}, fmt.Errorf("clickhouse: scan %s: %w", symbol, err)
		}
		b.Date = domain.TradingDay(b.Date, time.UTC)
		out.Bars = append(out.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return domain.BarSeries{}, fmt.Errorf("clickhouse: rows %s: %w", symbol, err)
	}
	return out, nil
}

// Close releases the connection.
func (s *BarStore) Close() error {
	return s.conn.Close()
}
