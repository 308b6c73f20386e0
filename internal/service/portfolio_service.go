package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
)

// PortfolioDeps are the collaborators of a PortfolioService. Audit may be nil.
type PortfolioDeps struct {
	Engine        *engine.Engine
	Settings      *SettingsService
	Prices        domain.PriceCache
	Equity        domain.EquityStore
	Results       domain.ScanResultStore
	Notifications domain.NotificationStore
	Audit         domain.AuditStore
}

// PortfolioService is the read model of the account plus the operator's
// manual buy, close and reset actions.
type PortfolioService struct {
	deps         PortfolioDeps
	ledger       domain.Ledger
	startingCash float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewPortfolioService creates a PortfolioService. startingCash is what Reset
// restores.
func NewPortfolioService(deps PortfolioDeps, startingCash float64, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		deps:         deps,
		ledger:       deps.Engine.Ledger(),
		startingCash: startingCash,
		logger:       logger.With(slog.String("component", "portfolio_service")),
		now:          time.Now,
	}
}

// marks prices open positions from the price cache. Positions without a
// cached price are valued at entry.
func (s *PortfolioService) marks(ctx context.Context, open []domain.Position) domain.PriceSnapshot {
	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}
	out := domain.PriceSnapshot{}
	if len(symbols) == 0 {
		return out
	}
	cached, err := s.deps.Prices.GetPrices(ctx, symbols)
	if err != nil {
		s.logger.WarnContext(ctx, "cached prices unavailable, valuing at entry", slog.String("error", err.Error()))
		return out
	}
	for k, v := range cached {
		out[k] = v
	}
	return out
}

// Summary returns the marked-to-market account summary.
func (s *PortfolioService) Summary(ctx context.Context) (domain.PortfolioSummary, error) {
	open, err := s.ledger.ListOpen(ctx)
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("portfolio_service: list open: %w", err)
	}
	return s.deps.Engine.Summary(ctx, s.marks(ctx, open))
}

// OpenPositions returns open positions with their current mark.
func (s *PortfolioService) OpenPositions(ctx context.Context) ([]domain.OpenPositionView, error) {
	open, err := s.ledger.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list open: %w", err)
	}
	return portfolio.Enrich(open, s.marks(ctx, open)), nil
}

// Journal returns closed positions with realized P&L, newest close first.
func (s *PortfolioService) Journal(ctx context.Context) ([]domain.JournalEntry, error) {
	closed, err := s.ledger.ListClosed(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list closed: %w", err)
	}
	out := make([]domain.JournalEntry, 0, len(closed))
	for _, p := range closed {
		trades, err := s.ledger.PositionTrades(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("portfolio_service: trades of %d: %w", p.ID, err)
		}
		out = append(out, portfolio.Journal(p, trades))
	}
	return out, nil
}

// Stats summarizes closed-trade performance and equity drawdown.
func (s *PortfolioService) Stats(ctx context.Context) (domain.PerformanceStats, error) {
	closed, err := s.ledger.ListClosed(ctx)
	if err != nil {
		return domain.PerformanceStats{}, fmt.Errorf("portfolio_service: list closed: %w", err)
	}
	outcomes := make([]domain.TradeOutcome, 0, len(closed))
	for _, p := range closed {
		trades, err := s.ledger.PositionTrades(ctx, p.ID)
		if err != nil {
			return domain.PerformanceStats{}, fmt.Errorf("portfolio_service: trades of %d: %w", p.ID, err)
		}
		outcomes = append(outcomes, portfolio.Outcome(p, trades))
	}
	curve, err := s.deps.Equity.List(ctx)
	if err != nil {
		return domain.PerformanceStats{}, fmt.Errorf("portfolio_service: equity curve: %w", err)
	}
	return portfolio.ComputeStats(outcomes, curve), nil
}

// EquityCurve returns the daily snapshots in ascending date order.
func (s *PortfolioService) EquityCurve(ctx context.Context) ([]domain.EquitySnapshot, error) {
	curve, err := s.deps.Equity.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: equity curve: %w", err)
	}
	return curve, nil
}

// Trades lists executions.
func (s *PortfolioService) Trades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.ledger.ListTrades(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list trades: %w", err)
	}
	return trades, nil
}

// Notifications returns the newest notifications.
func (s *PortfolioService) Notifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	out, err := s.deps.Notifications.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: notifications: %w", err)
	}
	return out, nil
}

// Buy opens a manual position. Shares <= 0 sizes the entry by risk.
func (s *PortfolioService) Buy(ctx context.Context, m portfolio.ManualEntry) (domain.Position, error) {
	if m.Shares < 0 {
		return domain.Position{}, fmt.Errorf("%w: shares must be positive", domain.ErrZeroSize)
	}
	if m.Price <= 0 {
		return domain.Position{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidLevels)
	}
	if err := portfolio.CheckLevels(m.Price, m.Stop, m.Target1, m.Target2); err != nil {
		return domain.Position{}, err
	}
	settings, err := s.deps.Settings.Load(ctx)
	if err != nil {
		return domain.Position{}, err
	}
	open, err := s.ledger.ListOpen(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: list open: %w", err)
	}
	pos, err := s.deps.Engine.EnterManual(ctx, m, settings, s.marks(ctx, open), s.now())
	if err != nil {
		return domain.Position{}, err
	}
	s.audit(ctx, "manual_buy", map[string]any{"position_id": pos.ID, "symbol": pos.Symbol, "shares": pos.Shares, "price": pos.EntryPrice})
	return pos, nil
}

// CloseRequest sells part or all of an open position. Zero Shares sells
// everything; an empty Reason is manual; a non-positive Price uses the
// cached price.
type CloseRequest struct {
	Shares int
	Price  float64
	Reason domain.Reason
}

// Close applies req to position id. A position that is missing or already
// closed yields domain.ErrNotFound.
func (s *PortfolioService) Close(ctx context.Context, id int64, req CloseRequest) (domain.Position, error) {
	pos, err := s.ledger.GetPosition(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio_service: position %d: %w", id, err)
	}
	if !pos.IsOpen() {
		return domain.Position{}, fmt.Errorf("portfolio_service: position %d is closed: %w", id, domain.ErrNotFound)
	}
	if req.Shares < 0 || req.Shares > pos.Shares {
		return domain.Position{}, fmt.Errorf("%w: %d shares requested, %d held", domain.ErrZeroSize, req.Shares, pos.Shares)
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ReasonManual
	}
	price := req.Price
	if price <= 0 {
		px, _, err := s.deps.Prices.GetPrice(ctx, pos.Symbol)
		if err != nil {
			return domain.Position{}, fmt.Errorf("%w: no price given and none cached for %s", domain.ErrInvalidLevels, pos.Symbol)
		}
		price = px
	}
	settings, err := s.deps.Settings.Load(ctx)
	if err != nil {
		return domain.Position{}, err
	}
	next, err := s.deps.Engine.Sell(ctx, id, req.Shares, price, reason, settings.Commission, s.now())
	if err != nil {
		return domain.Position{}, err
	}
	s.audit(ctx, "manual_close", map[string]any{"position_id": id, "symbol": pos.Symbol, "shares": req.Shares, "price": price, "reason": string(reason)})
	return next, nil
}

// Reset wipes positions, trades, scan results, equity snapshots and
// notifications, and restores the starting cash.
func (s *PortfolioService) Reset(ctx context.Context) error {
	if err := s.ledger.Reset(ctx, s.startingCash); err != nil {
		return fmt.Errorf("portfolio_service: reset ledger: %w", err)
	}
	if err := s.deps.Results.DeleteAll(ctx); err != nil {
		return fmt.Errorf("portfolio_service: reset scan results: %w", err)
	}
	if err := s.deps.Equity.DeleteAll(ctx); err != nil {
		return fmt.Errorf("portfolio_service: reset equity: %w", err)
	}
	if err := s.deps.Notifications.DeleteAll(ctx); err != nil {
		return fmt.Errorf("portfolio_service: reset notifications: %w", err)
	}
	s.audit(ctx, "portfolio_reset", map[string]any{"starting_cash": s.startingCash})
	s.logger.InfoContext(ctx, "portfolio reset", slog.Float64("starting_cash", s.startingCash))
	return nil
}

func (s *PortfolioService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
