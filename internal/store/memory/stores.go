package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SettingsStore keeps settings in a map.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

func (s *SettingsStore) All(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *SettingsStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("memory: setting %q: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (s *SettingsStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *SettingsStore) Seed(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		if _, ok := s.values[k]; !ok {
			s.values[k] = v
		}
	}
	return nil
}

// EquityStore keeps one snapshot per date.
type EquityStore struct {
	mu    sync.RWMutex
	snaps map[time.Time]domain.EquitySnapshot
}

var _ domain.EquityStore = (*EquityStore)(nil)

func NewEquityStore() *EquityStore {
	return &EquityStore{snaps: make(map[time.Time]domain.EquitySnapshot)}
}

func (s *EquityStore) Upsert(_ context.Context, snap domain.EquitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Date.UTC()] = snap
	return nil
}

// List returns snapshots in ascending date order.
func (s *EquityStore) List(_ context.Context) ([]domain.EquitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EquitySnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b domain.EquitySnapshot) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *EquityStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.snaps)
	return nil
}

// NotificationStore is an append-only notification log.
type NotificationStore struct {
	mu    sync.RWMutex
	items []domain.Notification
	next  int64
}

var _ domain.NotificationStore = (*NotificationStore)(nil)

func NewNotificationStore() *NotificationStore { return &NotificationStore{} }

func (s *NotificationStore) Insert(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	n.ID = s.next
	s.items = append(s.items, n)
	return nil
}

// ListRecent returns up to limit notifications, newest first.
func (s *NotificationStore) ListRecent(_ context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 30
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0, min(limit, len(s.items)))
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.items[i])
	}
	return out, nil
}

func (s *NotificationStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

// ScanResultStore keeps scanner output in insertion order.
type ScanResultStore struct {
	mu      sync.RWMutex
	results []domain.ScanResult
	next    int64
}

var _ domain.ScanResultStore = (*ScanResultStore)(nil)

func NewScanResultStore() *ScanResultStore { return &ScanResultStore{} }

func (s *ScanResultStore) InsertBatch(_ context.Context, results []domain.ScanResult) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(results))
	for i, r := range results {
		s.next++
		r.ID = s.next
		ids[i] = r.ID
		s.results = append(s.results, r)
	}
	return ids, nil
}

func (s *ScanResultStore) MarkAutoTraded(_ context.Context, id, positionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].ID == id {
			pid := positionID
			s.results[i].AutoTraded = true
			s.results[i].PositionID = &pid
			return nil
		}
	}
	return fmt.Errorf("memory: scan result %d: %w", id, domain.ErrNotFound)
}

// ListRecent returns up to limit results, newest scan first and by
// descending confidence within a scan.
func (s *ScanResultStore) ListRecent(_ context.Context, limit int) ([]domain.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.results)
	slices.SortStableFunc(out, func(a, b domain.ScanResult) int {
		if c := b.ScannedAt.Compare(a.ScannedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Signal.Confidence, a.Signal.Confidence)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ScanResultStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = nil
	return nil
}

// AuditStore is an append-only audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

var _ domain.AuditStore = (*AuditStore)(nil)

func NewAuditStore() *AuditStore { return &AuditStore{now: time.Now} }

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

// List returns entries in [Since, Until), newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
