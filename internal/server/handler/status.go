package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// CycleSource exposes the state of the live loop.
type CycleSource interface {
	LastCycle() *service.CycleReport
}

// RegimeSource exposes the most recent market regime reading.
type RegimeSource interface {
	Last() domain.RegimeReading
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	Universe  int
	cycles    CycleSource
	regime    RegimeSource
}

// NewStatusHandler creates a StatusHandler. cycles and regime may be nil when
// the process does not run the live loop.
func NewStatusHandler(mode string, startedAt time.Time, universe int, cycles CycleSource, regime RegimeSource) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		StartedAt: startedAt,
		Universe:  universe,
		cycles:    cycles,
		regime:    regime,
	}
}

// GetStatus responds with the mode, uptime, last cycle and regime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"universe_size":  h.Universe,
	}
	if h.cycles != nil {
		if last := h.cycles.LastCycle(); last != nil {
			resp["last_cycle"] = last
		}
	}
	if h.regime != nil {
		resp["regime"] = h.regime.Last()
	}
	writeJSON(w, http.StatusOK, resp)
}
