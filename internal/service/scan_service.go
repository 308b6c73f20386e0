package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/strategy"
)

// ScanService runs the batch signal scan over the symbol universe.
type ScanService struct {
	pool     *feed.Pool
	prices   domain.PriceCache
	results  domain.ScanResultStore
	archiver domain.ReportArchiver
	bus      domain.SignalBus
	lookback int
	logger   *slog.Logger
	now      func() time.Time
}

// NewScanService creates a ScanService. archiver and bus may be nil.
func NewScanService(
	pool *feed.Pool,
	prices domain.PriceCache,
	results domain.ScanResultStore,
	archiver domain.ReportArchiver,
	bus domain.SignalBus,
	lookbackDays int,
	logger *slog.Logger,
) *ScanService {
	return &ScanService{
		pool:     pool,
		prices:   prices,
		results:  results,
		archiver: archiver,
		bus:      bus,
		lookback: lookbackDays,
		logger:   logger.With(slog.String("component", "scan_service")),
		now:      time.Now,
	}
}

// ScanReport is the outcome of one batch scan. Signals are ranked and
// Results[i] is the persisted row of Signals[i].
type ScanReport struct {
	ScannedAt   time.Time            `json:"scanned_at"`
	Scanned     int                  `json:"scanned"`
	Failed      int                  `json:"failed"`
	Signals     []domain.Signal      `json:"signals"`
	Results     []domain.ScanResult  `json:"-"`
	Prices      domain.PriceSnapshot `json:"-"`
	ArchivePath string               `json:"archive_path,omitempty"`
}

// Scan fetches bars for symbols, evaluates each series, caches the last
// close of every fetched symbol and persists the ranked signals. A symbol
// whose fetch fails is counted and skipped.
func (s *ScanService) Scan(ctx context.Context, symbols []string) (ScanReport, error) {
	now := s.now()
	rep := ScanReport{ScannedAt: now, Prices: domain.PriceSnapshot{}}
	start := now.AddDate(0, 0, -s.lookback)

	for _, res := range s.pool.FetchAll(ctx, symbols, start, now) {
		if res.Err != nil {
			rep.Failed++
			continue
		}
		if res.Series.Empty() {
			continue
		}
		rep.Scanned++
		last := res.Series.Last()
		rep.Prices[res.Symbol] = last.Close
		if err := s.prices.SetPrice(ctx, res.Symbol, last.Close, last.Date); err != nil {
			s.logger.WarnContext(ctx, "cache price failed",
				slog.String("symbol", res.Symbol),
				slog.String("error", err.Error()),
			)
		}

		sig, rej := strategy.Evaluate(res.Series)
		if rej != "" {
			if rej.Invalid() {
				s.logger.WarnContext(ctx, "signal rejected",
					slog.String("symbol", res.Symbol),
					slog.String("reason", string(rej)),
				)
			}
			continue
		}
		rep.Signals = append(rep.Signals, sig)
	}
	strategy.Rank(rep.Signals)

	if len(rep.Signals) > 0 {
		rows := make([]domain.ScanResult, len(rep.Signals))
		for i, sig := range rep.Signals {
			rows[i] = domain.ScanResult{Signal: sig, ScannedAt: now}
		}
		ids, err := s.results.InsertBatch(ctx, rows)
		if err != nil {
			return rep, fmt.Errorf("scan_service: persist results: %w", err)
		}
		for i := range rows {
			rows[i].ID = ids[i]
		}
		rep.Results = rows
		s.publish(ctx, rep)
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveScan(ctx, now, rep.Signals)
		if err != nil {
			s.logger.WarnContext(ctx, "archive scan failed", slog.String("error", err.Error()))
		}
		rep.ArchivePath = path
	}

	s.logger.InfoContext(ctx, "scan complete",
		slog.Int("symbols", len(symbols)),
		slog.Int("scanned", rep.Scanned),
		slog.Int("failed", rep.Failed),
		slog.Int("signals", len(rep.Signals)),
	)
	return rep, nil
}

// Recent returns the newest persisted scan results.
func (s *ScanService) Recent(ctx context.Context, limit int) ([]domain.ScanResult, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := s.results.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("scan_service: list results: %w", err)
	}
	return out, nil
}

func (s *ScanService) publish(ctx context.Context, rep ScanReport) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"scanned_at": rep.ScannedAt,
		"signals":    rep.Signals,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSignals, payload); err != nil {
		s.logger.WarnContext(ctx, "publish signals failed", slog.String("error", err.Error()))
	}
}
