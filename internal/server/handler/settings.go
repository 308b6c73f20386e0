package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SettingsService defines the methods that the settings handler requires.
type SettingsService interface {
	Load(ctx context.Context) (domain.Settings, error)
	Update(ctx context.Context, updates map[string]string) (domain.Settings, error)
}

// SettingsHandler serves the runtime trading parameters.
type SettingsHandler struct {
	svc    SettingsService
	logger *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler with the given service and logger.
func NewSettingsHandler(svc SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, logger: logHandler(logger, "settings")}
}

// GetSettings returns every setting as a key/value string map.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Load(r.Context())
	if err != nil {
		fail(w, r, h.logger, "load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Values())
}

// UpdateSettings applies either a single {"key": ..., "value": ...} pair or
// a map of keys to values. Values may be JSON strings, numbers or booleans.
// Nothing is written unless every value is valid.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updates, err := settingUpdates(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "no settings given")
		return
	}

	s, err := h.svc.Update(r.Context(), updates)
	if err != nil {
		fail(w, r, h.logger, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Values())
}

// settingUpdates flattens a request body into key/value strings.
func settingUpdates(body map[string]json.RawMessage) (map[string]string, error) {
	rawKey, hasKey := body["key"]
	rawValue, hasValue := body["value"]
	if hasKey && hasValue && len(body) == 2 {
		var key string
		if err := json.Unmarshal(rawKey, &key); err != nil {
			return nil, fmt.Errorf("key must be a string")
		}
		v, err := settingString(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return map[string]string{key: v}, nil
	}

	out := make(map[string]string, len(body))
	for k, raw := range body {
		v, err := settingString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func settingString(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("value must be a string, number or boolean")
	}
}
