package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SettingsService reads and updates the runtime trading parameters.
type SettingsService struct {
	store  domain.SettingsStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewSettingsService creates a SettingsService. audit may be nil.
func NewSettingsService(store domain.SettingsStore, audit domain.AuditStore, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "settings_service")),
	}
}

// Seed stores seed for every key not already present.
func (s *SettingsService) Seed(ctx context.Context, seed domain.Settings) error {
	if err := s.store.Seed(ctx, seed.Values()); err != nil {
		return fmt.Errorf("settings_service: seed: %w", err)
	}
	return nil
}

// Load returns the stored settings. Missing keys and values that no longer
// parse fall back to their defaults.
func (s *SettingsService) Load(ctx context.Context) (domain.Settings, error) {
	stored, err := s.store.All(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings_service: load: %w", err)
	}
	out := domain.DefaultSettings()
	for _, key := range domain.SettingKeys {
		raw, ok := stored[key]
		if !ok {
			continue
		}
		if err := out.Set(key, raw); err != nil {
			s.logger.WarnContext(ctx, "stored setting ignored, using default",
				slog.String("key", key),
				slog.String("value", raw),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

// Update validates every value in updates and, only if all of them parse,
// persists them and records an audit entry. It returns the settings in
// effect afterwards. Invalid input yields an error wrapping
// domain.ErrInvalidSetting and changes nothing.
func (s *SettingsService) Update(ctx context.Context, updates map[string]string) (domain.Settings, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	next := current
	for _, k := range keys {
		if err := next.Set(k, updates[k]); err != nil {
			return domain.Settings{}, err
		}
	}

	nextValues := next.Values()
	for _, k := range keys {
		if err := s.store.Set(ctx, k, nextValues[k]); err != nil {
			return domain.Settings{}, fmt.Errorf("settings_service: set %s: %w", k, err)
		}
	}

	if s.audit != nil {
		prev := current.Values()
		detail := make(map[string]any, len(keys))
		for _, k := range keys {
			detail[k] = map[string]string{"from": prev[k], "to": nextValues[k]}
		}
		if err := s.audit.Log(ctx, "settings_updated", detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "settings updated", slog.Any("keys", keys))
	return next, nil
}
