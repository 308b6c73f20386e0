package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// ScanService defines the methods that the scanner handler requires.
type ScanService interface {
	Scan(ctx context.Context, symbols []string) (service.ScanReport, error)
	Recent(ctx context.Context, limit int) ([]domain.ScanResult, error)
}

// ScannerHandler serves scan results and manual scan triggers.
type ScannerHandler struct {
	svc      ScanService
	universe []string
	logger   *slog.Logger
}

// NewScannerHandler creates a ScannerHandler. universe is scanned when a run
// request names no symbols.
func NewScannerHandler(svc ScanService, universe []string, logger *slog.Logger) *ScannerHandler {
	return &ScannerHandler{svc: svc, universe: universe, logger: logHandler(logger, "scanner")}
}

// ListResults returns the newest persisted scan results.
// GET /api/scanner/results?limit=50
func (h *ScannerHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Recent(r.Context(), min(parseLimit(r, 50), 500))
	if err != nil {
		fail(w, r, h.logger, "list scan results", err)
		return
	}
	if out == nil {
		out = []domain.ScanResult{}
	}
	writeJSON(w, http.StatusOK, out)
}

// runRequest is the optional JSON body for POST /api/scanner/run.
type runRequest struct {
	Symbols []string `json:"symbols,omitempty"`
}

// Run scans the requested symbols, or the whole universe, and returns the
// ranked signals. It does not trade.
// POST /api/scanner/run
func (h *ScannerHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	symbols := h.universe
	if len(req.Symbols) > 0 {
		symbols = make([]string, 0, len(req.Symbols))
		for _, s := range req.Symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if !config.ValidSymbol(s) {
				writeError(w, http.StatusBadRequest, "invalid symbol: "+s)
				return
			}
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "no symbols to scan")
		return
	}

	rep, err := h.svc.Scan(r.Context(), symbols)
	if err != nil {
		fail(w, r, h.logger, "scan", err)
		return
	}
	signals := rep.Signals
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned_at":    rep.ScannedAt,
		"scanned":       rep.Scanned,
		"failed":        rep.Failed,
		"signals_found": len(signals),
		"signals":       signals,
	})
}
