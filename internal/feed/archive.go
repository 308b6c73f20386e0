package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// CoverageSlack is how far stored bars may fall short of either end of a
// requested range and still count as covering it. It absorbs weekends and
// exchange holidays.
const CoverageSlack = 7 * 24 * time.Hour

// Archived is a domain.BarProvider that reads through the bar archive.
type Archived struct {
	remote        domain.BarProvider
	archive       domain.BarArchive
	preferArchive bool
	now           func() time.Time
	logger        *slog.Logger
}

var _ domain.BarProvider = (*Archived)(nil)

// NewArchived wraps remote with archive. When preferArchive is set, ranges
// the archive already covers are served without a remote call.
func NewArchived(remote domain.BarProvider, archive domain.BarArchive, preferArchive bool, logger *slog.Logger) *Archived {
	return &Archived{
		remote:        remote,
		archive:       archive,
		preferArchive: preferArchive,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "bar_archive")),
	}
}

func (a *Archived) FetchBars(ctx context.Context, symbol string, start, end time.Time) (domain.BarSeries, error) {
	if a.preferArchive {
		stored, err := a.archive.LoadBars(ctx, symbol, start, end)
		if err == nil && Covers(stored, start, end, a.now()) {
			return stored, nil
		}
		if err != nil {
			a.logger.WarnContext(ctx, "archive read failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}

	series, err := a.remote.FetchBars(ctx, symbol, start, end)
	if err != nil {
		stored, aerr := a.archive.LoadBars(ctx, symbol, start, end)
		if aerr == nil && !stored.Empty() {
			a.logger.WarnContext(ctx, "remote fetch failed, serving archived bars",
				slog.String("symbol", symbol),
				slog.Int("bars", stored.Len()),
				slog.String("error", err.Error()),
			)
			return stored, nil
		}
		return domain.BarSeries{}, err
	}
	if !series.Empty() {
		if err := a.archive.SaveBars(ctx, series); err != nil {
			a.logger.WarnContext(ctx, "archive write failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}
	return series, nil
}

// Covers reports whether s spans [start, min(end, now)] to within
// CoverageSlack at both ends.
func Covers(s domain.BarSeries, start, end, now time.Time) bool {
	if s.Empty() {
		return false
	}
	if now.Before(end) {
		end = now
	}
	first, last := s.Bars[0].Date, s.Last().Date
	return !first.After(start.Add(CoverageSlack)) && !last.Before(end.Add(-CoverageSlack))
}
