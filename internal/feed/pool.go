// Package feed fetches daily bars for the scanner and the backtest. Pool
// fans symbol fetches out over a bounded number of workers with a timeout,
// retry and backoff on each attempt; Archived layers the bar archive in
// front of a remote provider.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// PoolConfig bounds the fetch pool.
type PoolConfig struct {
	Concurrency int
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// RateLimit requests per RateWindow are shared by every pool using
	// LimiterKey. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	LimiterKey string
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff * 8
	}
	if c.LimiterKey == "" {
		c.LimiterKey = "bars"
	}
	return c
}

// Result is the outcome of fetching one symbol.
type Result struct {
	Symbol   string
	Series   domain.BarSeries
	Err      error
	Attempts int
}

// Pool fetches bars for many symbols concurrently.
type Pool struct {
	provider domain.BarProvider
	limiter  domain.RateLimiter
	cfg      PoolConfig
	logger   *slog.Logger
}

// NewPool creates a Pool. limiter may be nil.
func NewPool(provider domain.BarProvider, limiter domain.RateLimiter, cfg PoolConfig, logger *slog.Logger) *Pool {
	return &Pool{
		provider: provider,
		limiter:  limiter,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "fetch_pool")),
	}
}

// FetchAll fetches every symbol and returns one Result per symbol in input
// order. Per-symbol failures are reported in the Result and never abort the
// batch.
func (p *Pool) FetchAll(ctx context.Context, symbols []string, start, end time.Time) []Result {
	results := make([]Result, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			results[i] = p.Fetch(gctx, sym, start, end)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.InfoContext(ctx, "fetch batch complete",
		slog.Int("symbols", len(symbols)),
		slog.Int("failed", failed),
	)
	return results
}

// Fetch fetches one symbol, retrying with exponential backoff.
func (p *Pool) Fetch(ctx context.Context, symbol string, start, end time.Time) Result {
	res := Result{Symbol: symbol}
	backoff := p.cfg.Backoff
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		series, err := p.attempt(ctx, symbol, start, end)
		if err == nil {
			res.Series, res.Err = series, nil
			return res
		}
		res.Err = err
		if ctx.Err() != nil || attempt == p.cfg.MaxAttempts {
			break
		}
		p.logger.DebugContext(ctx, "fetch attempt failed",
			slog.String("symbol", symbol),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if err := sleep(ctx, backoff); err != nil {
			res.Err = err
			break
		}
		backoff = min(backoff*2, p.cfg.MaxBackoff)
	}
	p.logger.WarnContext(ctx, "fetch failed",
		slog.String("symbol", symbol),
		slog.Int("attempts", res.Attempts),
		slog.String("error", res.Err.Error()),
	)
	return res
}

func (p *Pool) attempt(ctx context.Context, symbol string, start, end time.Time) (domain.BarSeries, error) {
	if p.limiter != nil && p.cfg.RateLimit > 0 {
		if err := p.limiter.Wait(ctx, p.cfg.LimiterKey, p.cfg.RateLimit, p.cfg.RateWindow); err != nil {
			if ctx.Err() != nil {
				return domain.BarSeries{}, fmt.Errorf("feed: %s: %w", symbol, ctx.Err())
			}
			// A broken limiter must not stall the scan.
			p.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		}
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	series, err := p.provider.FetchBars(actx, symbol, start, end)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.BarSeries{}, fmt.Errorf("feed: %s: timed out after %s: %w", symbol, p.cfg.Timeout, err)
		}
		return domain.BarSeries{}, fmt.Errorf("feed: %s: %w", symbol, err)
	}
	if series.Symbol == "" {
		series.Symbol = symbol
	}
	return series, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
