// Package backtest replays the decision engine over historical daily bars.
//
// The replay is single-threaded and a pure function of its bar data and
// Config: two runs over the same input produce identical results. It drives
// the same engine.Engine as the live cycle, backed by an in-memory ledger,
// so thresholds, rounding and tie-breaks cannot drift between the two.
package backtest

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/indicator"
	"github.com/alanyoungcy/swingbot/internal/num"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
	"github.com/alanyoungcy/swingbot/internal/strategy"
)

// Replay defaults.
const (
	DefaultWarmupDays   = 90
	DefaultStartingCash = 150000.0
	// MinTrailBars is the bar index from which the EMA8 trail is trusted.
	MinTrailBars = 8
	// TrailLookbackDays is the calendar window the live trail reads EMA8
	// from. Over the ~80 bars it spans the seed's weight (7/9)^80 falls
	// below 1e-8, so the live EMA8 tracks the full-history value the replay
	// reads.
	TrailLookbackDays = 120
)

// Config fixes every input of a replay other than the bars themselves.
type Config struct {
	Start        time.Time
	End          time.Time
	StartingCash float64
	Settings     domain.Settings
	WarmupDays   int
	// RiskGate applies the circuit breaker before each day's buys.
	RiskGate bool
}

// FetchWindow returns the bar range to download for cfg: the replay range
// widened by the warmup margin.
func (c Config) FetchWindow() (start, end time.Time) {
	warmup := c.WarmupDays
	if warmup <= 0 {
		warmup = DefaultWarmupDays
	}
	return c.Start.AddDate(0, 0, -warmup), c.End
}

func (c Config) validate() error {
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("backtest: start and end are required")
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("backtest: end %s before start %s", c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("backtest: starting cash must be positive")
	}
	return nil
}

// Summary is the headline of a replay.
type Summary struct {
	Start            time.Time               `json:"start"`
	End              time.Time               `json:"end"`
	Symbols          int                     `json:"symbols"`
	Skipped          []string                `json:"skipped,omitempty"`
	TradingDays      int                     `json:"trading_days"`
	StartingCash     float64                 `json:"starting_cash"`
	FinalEquity      float64                 `json:"final_equity"`
	NetPnL           float64                 `json:"net_pnl"`
	ReturnPct        float64                 `json:"return_pct"`
	SignalsGenerated int                     `json:"signals_generated"`
	SignalsTraded    int                     `json:"signals_traded"`
	BreakerDays      int                     `json:"breaker_days,omitempty"`
	Stats            domain.PerformanceStats `json:"stats"`
}

// Execution is one row of the trade journal.
type Execution struct {
	Date        time.Time     `json:"date"`
	Symbol      string        `json:"symbol"`
	PositionID  int64         `json:"position_id"`
	Action      domain.Action `json:"action"`
	Shares      int           `json:"shares"`
	Price       float64       `json:"price"`
	Proceeds    float64       `json:"proceeds"`
	Reason      domain.Reason `json:"reason"`
	Label       string        `json:"label"`
	PositionPnL *float64      `json:"position_pnl,omitempty"`
}

// MonthlyEquity is the closing equity of one calendar month.
type MonthlyEquity struct {
	Month     string  `json:"month"`
	Equity    float64 `json:"equity"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

// Result is the terminal report of a replay.
type Result struct {
	Summary Summary                 `json:"summary"`
	Equity  []domain.EquitySnapshot `json:"equity"`
	Journal []Execution             `json:"journal"`
	Monthly []MonthlyEquity         `json:"monthly"`
}

type track struct {
	frame indicator.Frame
	index map[time.Time]int
}

// Run replays series over cfg's range. Bars after cfg.End are ignored and
// symbols with fewer than strategy.MinBars bars are skipped.
func Run(ctx context.Context, cfg Config, series []domain.BarSeries, logger *slog.Logger) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	logger = logger.With(slog.String("component", "backtest"))

	var (
		tracks  []track
		usable  []domain.BarSeries
		skipped []string
	)
	for _, s := range series {
		s = s.Through(cfg.End)
		if s.Len() < strategy.MinBars {
			skipped = append(skipped, s.Symbol)
			continue
		}
		usable = append(usable, s)
		t := track{frame: indicator.NewFrame(s), index: make(map[time.Time]int, s.Len())}
		for i, b := range s.Bars {
			t.index[b.Date] = i
		}
		tracks = append(tracks, t)
	}
	days := Calendar(usable, cfg.Start, cfg.End)

	ledger := memory.NewLedger(cfg.StartingCash)
	eng := engine.New(ledger, nil, logger)
	s := cfg.Settings
	marks := domain.PriceSnapshot{}

	res := Result{Summary: Summary{
		Start:        cfg.Start,
		End:          cfg.End,
		Symbols:      len(tracks),
		Skipped:      skipped,
		TradingDays:  len(days),
		StartingCash: cfg.StartingCash,
	}}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("backtest: %w", err)
		}

		prices := domain.PriceSnapshot{}
		ema8 := map[string]float64{}
		for _, t := range tracks {
			i, ok := t.index[day]
			if !ok {
				continue
			}
			prices[t.frame.Symbol] = t.frame.Bars[i].Close
			marks[t.frame.Symbol] = t.frame.Bars[i].Close
			if i >= MinTrailBars {
				ema8[t.frame.Symbol] = t.frame.EMA8[i]
			}
		}

		if s.TrailingStopEnabled {
			if _, err := eng.UpdateTrailingStops(ctx, ema8); err != nil {
				return Result{}, fmt.Errorf("backtest: %s: %w", day.Format(time.DateOnly), err)
			}
		}
		if _, err := eng.CheckExits(ctx, prices, s.Commission, day); err != nil {
			return Result{}, fmt.Errorf("backtest: %s: %w", day.Format(time.DateOnly), err)
		}

		var signals []domain.Signal
		for _, t := range tracks {
			i, ok := t.index[day]
			if !ok || i+1 < strategy.MinBars {
				continue
			}
			if sig, rej := strategy.Detect(t.frame.Upto(i)); rej == "" {
				signals = append(signals, sig)
			}
		}
		strategy.Rank(signals)
		res.Summary.SignalsGenerated += len(signals)

		buy := true
		if cfg.RiskGate {
			b, err := eng.CheckBreaker(ctx, s, marks, day, day.AddDate(0, 0, 1))
			if err != nil {
				return Result{}, fmt.Errorf("backtest: %s: %w", day.Format(time.DateOnly), err)
			}
			if b.Tripped {
				buy = false
				res.Summary.BreakerDays++
			}
		}
		if buy && len(signals) > 0 {
			entries, err := eng.EnterAll(ctx, signals, s, marks, day)
			if err != nil {
				return Result{}, fmt.Errorf("backtest: %s: %w", day.Format(time.DateOnly), err)
			}
			res.Summary.SignalsTraded += len(entries)
		}

		snap, err := eng.Snapshot(ctx, marks, day)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: %s: %w", day.Format(time.DateOnly), err)
		}
		res.Equity = append(res.Equity, snap)
	}

	if err := forceClose(ctx, eng, tracks, days, s.Commission); err != nil {
		return Result{}, err
	}
	if err := report(ctx, ledger, &res); err != nil {
		return Result{}, err
	}
	logger.InfoContext(ctx, "backtest complete",
		slog.Int("days", len(days)),
		slog.Int("symbols", len(tracks)),
		slog.Int("trades", res.Summary.Stats.TotalTrades),
		slog.Float64("final_equity", res.Summary.FinalEquity),
	)
	return res, nil
}

// Calendar is the sorted union of every series' bar dates within
// [start, end].
func Calendar(series []domain.BarSeries, start, end time.Time) []time.Time {
	seen := map[time.Time]struct{}{}
	var days []time.Time
	for _, s := range series {
		for _, b := range s.Bars {
			if b.Date.Before(start) || b.Date.After(end) {
				continue
			}
			if _, ok := seen[b.Date]; ok {
				continue
			}
			seen[b.Date] = struct{}{}
			days = append(days, b.Date)
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
	return days
}

// forceClose sells every open position at its symbol's last close on the
// final trading day.
func forceClose(ctx context.Context, eng *engine.Engine, tracks []track, days []time.Time, commission float64) error {
	if len(days) == 0 {
		return nil
	}
	last := days[len(days)-1]
	lastClose := make(map[string]float64, len(tracks))
	for _, t := range tracks {
		if n := t.frame.Len(); n > 0 {
			lastClose[t.frame.Symbol] = t.frame.Bars[n-1].Close
		}
	}
	open, err := eng.Ledger().ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("backtest: force close: %w", err)
	}
	for _, p := range open {
		price, ok := lastClose[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		if _, err := eng.Sell(ctx, p.ID, p.Shares, price, domain.ReasonBacktestEnd, commission, last); err != nil {
			return fmt.Errorf("backtest: force close %s: %w", p.Symbol, err)
		}
	}
	return nil
}

func report(ctx context.Context, ledger domain.Ledger, res *Result) error {
	closed, err := ledger.ListClosed(ctx)
	if err != nil {
		return fmt.Errorf("backtest: list closed: %w", err)
	}
	slices.SortFunc(closed, func(a, b domain.Position) int { return cmp.Compare(a.ID, b.ID) })
	trades, err := ledger.ListTrades(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("backtest: list trades: %w", err)
	}
	pf, err := ledger.Portfolio(ctx)
	if err != nil {
		return fmt.Errorf("backtest: read portfolio: %w", err)
	}

	outcomes := make([]domain.TradeOutcome, 0, len(closed))
	final := make(map[int64]int64, len(closed))
	pnl := make(map[int64]float64, len(closed))
	for _, p := range closed {
		o := portfolio.Outcome(p, trades)
		outcomes = append(outcomes, o)
		pnl[p.ID] = num.Money(o.PnL)
	}
	for _, t := range trades {
		final[t.PositionID] = t.ID
	}

	res.Journal = make([]Execution, 0, len(trades))
	for _, t := range trades {
		ex := Execution{
			Date:       t.ExecutedAt,
			Symbol:     t.Symbol,
			PositionID: t.PositionID,
			Action:     t.Action,
			Shares:     t.Shares,
			Price:      t.Price,
			Proceeds:   num.Money(t.CashDelta()),
			Reason:     t.Reason,
			Label:      t.Reason.Label(),
		}
		if v, ok := pnl[t.PositionID]; ok && t.Action == domain.ActionSell && final[t.PositionID] == t.ID {
			ex.PositionPnL = &v
		}
		res.Journal = append(res.Journal, ex)
	}
	slices.SortStableFunc(res.Journal, func(a, b Execution) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(actionRank(a.Action), actionRank(b.Action))
	})

	sum := &res.Summary
	sum.Stats = portfolio.ComputeStats(outcomes, res.Equity)
	sum.FinalEquity = num.Money(pf.Cash)
	sum.NetPnL = num.Money(pf.Cash - sum.StartingCash)
	sum.ReturnPct = num.Money((pf.Cash - sum.StartingCash) / sum.StartingCash * 100)
	res.Monthly = Monthly(res.Equity, sum.StartingCash)
	return nil
}

func actionRank(a domain.Action) int {
	if a == domain.ActionBuy {
		return 0
	}
	return 1
}

// Monthly reduces the curve to the last equity of each month, with the
// change against the previous month. The first month compares against
// startingCash.
func Monthly(curve []domain.EquitySnapshot, startingCash float64) []MonthlyEquity {
	var out []MonthlyEquity
	for _, snap := range curve {
		month := snap.Date.Format("2006-01")
		if n := len(out); n > 0 && out[n-1].Month == month {
			out[n-1].Equity = snap.TotalEquity
			continue
		}
		out = append(out, MonthlyEquity{Month: month, Equity: snap.TotalEquity})
	}
	prev := startingCash
	for i := range out {
		change := out[i].Equity - prev
		out[i].Change = num.Money(change)
		if prev > 0 {
			out[i].ChangePct = num.Money(change / prev * 100)
		}
		prev = out[i].Equity
	}
	return out
}
