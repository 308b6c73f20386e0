package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/portfolio"
	"github.com/alanyoungcy/swingbot/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePortfolio struct {
	buys   []portfolio.ManualEntry
	closes map[int64]service.CloseRequest
	buyErr error
	resets int
}

func (f *fakePortfolio) Summary(context.Context) (domain.PortfolioSummary, error) {
	return domain.PortfolioSummary{Cash: 150000, TotalEquity: 150000, StartingCash: 150000}, nil
}

func (f *fakePortfolio) OpenPositions(context.Context) ([]domain.OpenPositionView, error) {
	return nil, nil
}

func (f *fakePortfolio) Journal(context.Context) ([]domain.JournalEntry, error) {
	return []domain.JournalEntry{{Position: domain.Position{ID: 1, Symbol: "AAPL"}, NetPnL: 42}}, nil
}

func (f *fakePortfolio) Stats(context.Context) (domain.PerformanceStats, error) {
	return domain.PerformanceStats{}, errors.New("db down")
}

func (f *fakePortfolio) EquityCurve(context.Context) ([]domain.EquitySnapshot, error) {
	return nil, nil
}

func (f *fakePortfolio) Trades(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	return []domain.Trade{{ID: int64(opts.Limit), Symbol: "AAPL", Action: domain.ActionBuy}}, nil
}

func (f *fakePortfolio) Notifications(_ context.Context, limit int) ([]domain.Notification, error) {
	out := make([]domain.Notification, limit)
	for i := range out {
		out[i] = domain.Notification{ID: int64(i + 1), Level: domain.LevelInfo}
	}
	return out, nil
}

func (f *fakePortfolio) Buy(_ context.Context, m portfolio.ManualEntry) (domain.Position, error) {
	if f.buyErr != nil {
		return domain.Position{}, f.buyErr
	}
	f.buys = append(f.buys, m)
	shares := m.Shares
	if shares == 0 {
		shares = 100
	}
	return domain.Position{ID: 7, Symbol: m.Symbol, Shares: shares, EntryPrice: m.Price, State: domain.StateOpen}, nil
}

func (f *fakePortfolio) Close(_ context.Context, id int64, req service.CloseRequest) (domain.Position, error) {
	if id != 7 {
		return domain.Position{}, fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	if f.closes == nil {
		f.closes = map[int64]service.CloseRequest{}
	}
	f.closes[id] = req
	return domain.Position{ID: id, State: domain.StateClosed}, nil
}

func (f *fakePortfolio) Reset(context.Context) error {
	f.resets++
	return nil
}

func serve(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("engine: %w", domain.ErrInsufficientCash), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrAlreadyHeld), http.StatusBadRequest},
		{fmt.Errorf("%w: risk_pct", domain.ErrInvalidSetting), http.StatusBadRequest},
		{fmt.Errorf("postgres: %w", domain.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query       string
		limit, offs int
	}{
		{"", 50, 0},
		{"limit=10&offset=5", 10, 5},
		{"limit=9999", 500, 0},
		{"limit=-1&offset=-3", 50, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		got := parseListOpts(r)
		if got.Limit != tt.limit || got.Offset != tt.offs {
			t.Errorf("%q: got %+v, want limit=%d offset=%d", tt.query, got, tt.limit, tt.offs)
		}
	}
}

func TestManualBuy(t *testing.T) {
	fp := &fakePortfolio{}
	h := NewPortfolioHandler(fp, discard)

	rec := serve(t, "POST /api/positions", h.Buy, http.MethodPost, "/api/positions",
		`{"symbol":" aapl ","price":100,"stop_price":95,"target1_price":110,"target2_price":120}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(fp.buys) != 1 || fp.buys[0].Symbol != "AAPL" || fp.buys[0].Shares != 0 {
		t.Fatalf("buys = %+v", fp.buys)
	}
	resp := decode[map[string]any](t, rec)
	if resp["position_id"].(float64) != 7 || resp["shares"].(float64) != 100 {
		t.Errorf("resp = %v", resp)
	}

	t.Run("rejection is 400", func(t *testing.T) {
		fp.buyErr = fmt.Errorf("%w: stop must be below entry", domain.ErrInvalidLevels)
		rec := serve(t, "POST /api/positions", h.Buy, http.MethodPost, "/api/positions",
			`{"symbol":"AAPL","price":100,"stop_price":105,"target1_price":110,"target2_price":120}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "stop must be below entry") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("missing symbol", func(t *testing.T) {
		rec := serve(t, "POST /api/positions", h.Buy, http.MethodPost, "/api/positions", `{"price":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := serve(t, "POST /api/positions", h.Buy, http.MethodPost, "/api/positions", `{"symbol":"A","qty":3}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestClosePosition(t *testing.T) {
	fp := &fakePortfolio{}
	h := NewPortfolioHandler(fp, discard)
	const pattern = "POST /api/positions/{id}/close"

	rec := serve(t, pattern, h.ClosePosition, http.MethodPost, "/api/positions/7/close",
		`{"shares":25,"price":111.5,"reason":"target1_partial"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := fp.closes[7]
	if got.Shares != 25 || got.Price != 111.5 || got.Reason != domain.ReasonTarget1 {
		t.Errorf("close request = %+v", got)
	}

	tests := []struct {
		name, target, body string
		want               int
	}{
		{"empty body closes all", "/api/positions/7/close", "", http.StatusOK},
		{"unknown position", "/api/positions/8/close", "{}", http.StatusNotFound},
		{"bad id", "/api/positions/abc/close", "{}", http.StatusBadRequest},
		{"bad reason", "/api/positions/7/close", `{"reason":"vibes"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, pattern, h.ClosePosition, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if fp.closes[7].Reason != "" || fp.closes[7].Shares != 0 {
		t.Errorf("empty body should leave defaults to the service, got %+v", fp.closes[7])
	}
}

func TestReadEndpoints(t *testing.T) {
	fp := &fakePortfolio{}
	h := NewPortfolioHandler(fp, discard)

	t.Run("empty lists are arrays", func(t *testing.T) {
		for _, tc := range []struct {
			pattern string
			fn      http.HandlerFunc
			target  string
		}{
			{"GET /api/positions", h.ListPositions, "/api/positions"},
			{"GET /api/equity-curve", h.GetEquityCurve, "/api/equity-curve"},
		} {
			rec := serve(t, tc.pattern, tc.fn, http.MethodGet, tc.target, "")
			if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
				t.Errorf("%s: %d %s", tc.target, rec.Code, rec.Body.String())
			}
		}
	})

	t.Run("journal and executions", func(t *testing.T) {
		rec := serve(t, "GET /api/trades", h.ListTrades, http.MethodGet, "/api/trades", "")
		journal := decode[[]domain.JournalEntry](t, rec)
		if len(journal) != 1 || journal[0].NetPnL != 42 {
			t.Errorf("journal = %+v", journal)
		}
		rec = serve(t, "GET /api/trades", h.ListTrades, http.MethodGet, "/api/trades?view=executions&limit=3", "")
		trades := decode[[]domain.Trade](t, rec)
		if len(trades) != 1 || trades[0].ID != 3 {
			t.Errorf("executions = %+v", trades)
		}
	})

	t.Run("notifications default limit", func(t *testing.T) {
		rec := serve(t, "GET /api/notifications", h.ListNotifications, http.MethodGet, "/api/notifications", "")
		if n := len(decode[[]domain.Notification](t, rec)); n != 30 {
			t.Errorf("got %d notifications, want 30", n)
		}
	})

	t.Run("internal error hides detail", func(t *testing.T) {
		rec := serve(t, "GET /api/stats", h.GetStats, http.MethodGet, "/api/stats", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "db down") {
			t.Errorf("leaked error detail: %s", rec.Body.String())
		}
	})

	t.Run("reset", func(t *testing.T) {
		rec := serve(t, "POST /api/reset", h.Reset, http.MethodPost, "/api/reset", "")
		resp := decode[map[string]any](t, rec)
		if fp.resets != 1 || resp["status"] != "reset" || resp["cash"].(float64) != 150000 {
			t.Errorf("resets=%d resp=%v", fp.resets, resp)
		}
	})
}

type fakeSettings struct {
	s       domain.Settings
	updates map[string]string
}

func (f *fakeSettings) Load(context.Context) (domain.Settings, error) { return f.s, nil }

func (f *fakeSettings) Update(_ context.Context, u map[string]string) (domain.Settings, error) {
	next := f.s
	for k, v := range u {
		if err := next.Set(k, v); err != nil {
			return domain.Settings{}, err
		}
	}
	f.updates = u
	f.s = next
	return next, nil
}

func TestSettingsHandler(t *testing.T) {
	fs := &fakeSettings{s: domain.DefaultSettings()}
	h := NewSettingsHandler(fs, discard)

	rec := serve(t, "GET /api/settings", h.GetSettings, http.MethodGet, "/api/settings", "")
	got := decode[map[string]string](t, rec)
	if got[domain.SettingRiskPct] != "0.02" || got[domain.SettingAutoTrade] != "true" {
		t.Errorf("settings = %v", got)
	}

	tests := []struct {
		name, body string
		want       int
		key, value string
	}{
		{"single pair", `{"key":"max_positions","value":"5"}`, http.StatusOK, "max_positions", "5"},
		{"typed map", `{"auto_trade":false,"risk_pct":0.015}`, http.StatusOK, "risk_pct", "0.015"},
		{"invalid value", `{"risk_pct":"lots"}`, http.StatusBadRequest, "", ""},
		{"unknown key", `{"leverage":3}`, http.StatusBadRequest, "", ""},
		{"nested value", `{"risk_pct":{"x":1}}`, http.StatusBadRequest, "", ""},
		{"empty", `{}`, http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, "PUT /api/settings", h.UpdateSettings, http.MethodPut, "/api/settings", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.key != "" && fs.updates[tt.key] != tt.value {
				t.Errorf("updates = %v", fs.updates)
			}
		})
	}
	if fs.s.AutoTrade {
		t.Error("auto_trade should have been switched off")
	}
}

type fakeScan struct {
	symbols []string
}

func (f *fakeScan) Scan(_ context.Context, symbols []string) (service.ScanReport, error) {
	f.symbols = symbols
	return service.ScanReport{
		ScannedAt: time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC),
		Scanned:   len(symbols),
		Signals:   []domain.Signal{{Symbol: symbols[0], Confidence: 70}},
	}, nil
}

func (f *fakeScan) Recent(_ context.Context, limit int) ([]domain.ScanResult, error) {
	return make([]domain.ScanResult, limit), nil
}

func TestScannerHandler(t *testing.T) {
	fs := &fakeScan{}
	h := NewScannerHandler(fs, []string{"AAPL", "MSFT"}, discard)

	rec := serve(t, "POST /api/scanner/run", h.Run, http.MethodPost, "/api/scanner/run", "")
	resp := decode[map[string]any](t, rec)
	if len(fs.symbols) != 2 || resp["signals_found"].(float64) != 1 {
		t.Errorf("symbols=%v resp=%v", fs.symbols, resp)
	}

	rec = serve(t, "POST /api/scanner/run", h.Run, http.MethodPost, "/api/scanner/run", `{"symbols":["nvda"]}`)
	if rec.Code != http.StatusOK || len(fs.symbols) != 1 || fs.symbols[0] != "NVDA" {
		t.Errorf("status=%d symbols=%v", rec.Code, fs.symbols)
	}

	rec = serve(t, "POST /api/scanner/run", h.Run, http.MethodPost, "/api/scanner/run", `{"symbols":["not a ticker"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid symbol status = %d", rec.Code)
	}

	rec = serve(t, "GET /api/scanner/results", h.ListResults, http.MethodGet, "/api/scanner/results?limit=5", "")
	if n := len(decode[[]domain.ScanResult](t, rec)); n != 5 {
		t.Errorf("got %d results, want 5", n)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := NewHealthHandler(map[string]Pinger{"postgres": ok}, discard)
	rec := serve(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	h = NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}, discard)
	rec = serve(t, "GET /api/health", h.HealthCheck, http.MethodGet, "/api/health", "")
	resp := decode[map[string]any](t, rec)
	if rec.Code != http.StatusServiceUnavailable || resp["status"] != "degraded" {
		t.Errorf("status=%d resp=%v", rec.Code, resp)
	}
}
