package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/server/handler"
	"github.com/alanyoungcy/swingbot/internal/service"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) *Server {
	t.Helper()
	settings := service.NewSettingsService(memory.NewSettingsStore(), nil, discard)
	if err := settings.Seed(context.Background(), domain.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	return NewServer(
		Config{Port: 0, APIKey: "k", RateWindow: time.Minute},
		Handlers{
			Health:   handler.NewHealthHandler(nil, discard),
			Status:   handler.NewStatusHandler("server", time.Now(), 3, nil, nil),
			Settings: handler.NewSettingsHandler(settings, discard),
		},
		nil, nil, discard,
	)
}

func TestRoutesAndAuth(t *testing.T) {
	h := newTestServer(t).Handler()

	tests := []struct {
		name, method, path, key, body string
		want                          int
	}{
		{"health is public", http.MethodGet, "/api/health", "", "", http.StatusOK},
		{"status needs key", http.MethodGet, "/api/status", "", "", http.StatusUnauthorized},
		{"status with key", http.MethodGet, "/api/status", "k", "", http.StatusOK},
		{"settings read", http.MethodGet, "/api/settings", "k", "", http.StatusOK},
		{"settings write", http.MethodPut, "/api/settings", "k", `{"max_positions":4}`, http.StatusOK},
		{"wrong method", http.MethodDelete, "/api/settings", "k", "", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/markets", "k", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
