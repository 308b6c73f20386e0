package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// PortfolioService defines the methods that the portfolio handler requires.
type PortfolioService interface {
	Summary(ctx context.Context) (domain.PortfolioSummary, error)
	OpenPositions(ctx context.Context) ([]domain.OpenPositionView, error)
	Journal(ctx context.Context) ([]domain.JournalEntry, error)
	Stats(ctx context.Context) (domain.PerformanceStats, error)
	EquityCurve(ctx context.Context) ([]domain.EquitySnapshot, error)
	Trades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
	Notifications(ctx context.Context, limit int) ([]domain.Notification, error)
	Buy(ctx context.Context, m portfolio.ManualEntry) (domain.Position, error)
	Close(ctx context.Context, id int64, req service.CloseRequest) (domain.Position, error)
	Reset(ctx context.Context) error
}

// PortfolioHandler serves account, position and journal endpoints.
type PortfolioHandler struct {
	svc    PortfolioService
	logger *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(svc PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{svc: svc, logger: logHandler(logger, "portfolio")}
}

// GetSummary returns cash, marked position value and total equity.
// GET /api/portfolio
func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		fail(w, r, h.logger, "portfolio summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ListPositions returns open positions with unrealized P&L.
// GET /api/positions
func (h *PortfolioHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.OpenPositions(r.Context())
	if err != nil {
		fail(w, r, h.logger, "list positions", err)
		return
	}
	if views == nil {
		views = []domain.OpenPositionView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// buyRequest is the JSON body for POST /api/positions.
type buyRequest struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	StopPrice    float64 `json:"stop_price"`
	Target1Price float64 `json:"target1_price"`
	Target2Price float64 `json:"target2_price"`
	Shares       int     `json:"shares,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// Buy opens a manual position. Without shares the entry is sized by risk.
// POST /api/positions
func (h *PortfolioHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	pos, err := h.svc.Buy(r.Context(), portfolio.ManualEntry{
		Symbol:  symbol,
		Price:   req.Price,
		Stop:    req.StopPrice,
		Target1: req.Target1Price,
		Target2: req.Target2Price,
		Shares:  req.Shares,
		Notes:   req.Notes,
	})
	if err != nil {
		fail(w, r, h.logger, "manual buy", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"position_id": pos.ID,
		"shares":      pos.Shares,
		"position":    pos,
	})
}

// closeRequest is the JSON body for POST /api/positions/{id}/close.
type closeRequest struct {
	Shares int     `json:"shares,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// ClosePosition sells part or all of an open position.
// POST /api/positions/{id}/close
func (h *PortfolioHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "position id must be a positive integer")
		return
	}
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var reason domain.Reason
	if req.Reason != "" {
		parsed, ok := domain.ParseReason(req.Reason)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown close reason: "+req.Reason)
			return
		}
		reason = parsed
	}

	pos, err := h.svc.Close(r.Context(), id, service.CloseRequest{
		Shares: req.Shares,
		Price:  req.Price,
		Reason: reason,
	})
	if err != nil {
		fail(w, r, h.logger, "close position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position": pos,
		"status":   pos.Status(),
	})
}

// ListTrades returns the closed-trade journal, or raw executions with
// ?view=executions.
// GET /api/trades
func (h *PortfolioHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "executions" {
		trades, err := h.svc.Trades(r.Context(), parseListOpts(r))
		if err != nil {
			fail(w, r, h.logger, "list executions", err)
			return
		}
		if trades == nil {
			trades = []domain.Trade{}
		}
		writeJSON(w, http.StatusOK, trades)
		return
	}

	journal, err := h.svc.Journal(r.Context())
	if err != nil {
		fail(w, r, h.logger, "trade journal", err)
		return
	}
	if journal == nil {
		journal = []domain.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, journal)
}

// GetStats returns closed-trade performance statistics.
// GET /api/stats
func (h *PortfolioHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		fail(w, r, h.logger, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetEquityCurve returns daily equity snapshots in date order.
// GET /api/equity-curve
func (h *PortfolioHandler) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := h.svc.EquityCurve(r.Context())
	if err != nil {
		fail(w, r, h.logger, "equity curve", err)
		return
	}
	if curve == nil {
		curve = []domain.EquitySnapshot{}
	}
	writeJSON(w, http.StatusOK, curve)
}

// ListNotifications returns the newest action lines.
// GET /api/notifications?limit=30
func (h *PortfolioHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Notifications(r.Context(), min(parseLimit(r, 30), 500))
	if err != nil {
		fail(w, r, h.logger, "list notifications", err)
		return
	}
	if out == nil {
		out = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Reset wipes the account back to its starting cash.
// POST /api/reset
func (h *PortfolioHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		fail(w, r, h.logger, "reset", err)
		return
	}
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		fail(w, r, h.logger, "portfolio summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "cash": sum.Cash})
}
