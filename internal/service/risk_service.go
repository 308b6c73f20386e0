package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/risk"
)

// RiskService reads the market regime from an index.
type RiskService struct {
	pool     *feed.Pool
	index    string
	lookback int
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last domain.RegimeReading
}

// NewRiskService creates a RiskService. An empty index uses
// risk.DefaultRegimeIndex.
func NewRiskService(pool *feed.Pool, index string, lookbackDays int, logger *slog.Logger) *RiskService {
	if index == "" {
		index = risk.DefaultRegimeIndex
	}
	return &RiskService{
		pool:     pool,
		index:    index,
		lookback: lookbackDays,
		logger:   logger.With(slog.String("component", "risk_service")),
		now:      time.Now,
		last:     risk.Unknown(index, time.Time{}),
	}
}

// Regime fetches the index and classifies it. A failed fetch reads as
// UNKNOWN, which never blocks entries.
func (s *RiskService) Regime(ctx context.Context) domain.RegimeReading {
	now := s.now()
	res := s.pool.Fetch(ctx, s.index, now.AddDate(0, 0, -s.lookback), now)

	var r domain.RegimeReading
	if res.Err != nil {
		s.logger.WarnContext(ctx, "regime fetch failed, treating as unknown",
			slog.String("index", s.index),
			slog.String("error", res.Err.Error()),
		)
		r = risk.Unknown(s.index, now)
	} else {
		r = risk.ClassifyRegime(s.index, res.Series.Closes(), now)
	}

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "market regime",
		slog.String("index", r.Index),
		slog.String("regime", string(r.Regime)),
		slog.Float64("price", r.Price),
		slog.Float64("ema50", r.EMA50),
		slog.Float64("ema200", r.EMA200),
	)
	return r
}

// Last returns the most recent reading without fetching.
func (s *RiskService) Last() domain.RegimeReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
