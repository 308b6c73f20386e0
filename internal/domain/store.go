package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Ledger owns cash, positions and the trade log. Each mutation is atomic: a
// reader never observes a debit without its position or a sell without its
// credit.
type Ledger interface {
	Portfolio(ctx context.Context) (Portfolio, error)
	// OpenPosition inserts pos, appends buy and applies buy's cash delta. It
	// returns the stored position with its assigned ID.
	OpenPosition(ctx context.Context, pos Position, buy Trade) (Position, error)
	// SellFromPosition persists the post-sell state of pos, appends sell and
	// applies its cash delta.
	SellFromPosition(ctx context.Context, pos Position, sell Trade) (Position, error)
	UpdateStop(ctx context.Context, positionID int64, stop, trailing float64) error
	GetPosition(ctx context.Context, id int64) (Position, error)
	// ListOpen returns open positions in ascending ID order.
	ListOpen(ctx context.Context) ([]Position, error)
	// ListClosed returns closed positions, most recently closed first.
	ListClosed(ctx context.Context) ([]Position, error)
	// ListTrades returns executions in ascending ID order.
	ListTrades(ctx context.Context, opts ListOpts) ([]Trade, error)
	PositionTrades(ctx context.Context, positionID int64) ([]Trade, error)
	// Reset wipes positions and trades and restores cash to startingCash.
	Reset(ctx context.Context, startingCash float64) error
}

// SettingsStore persists runtime settings as key/value strings.
type SettingsStore interface {
	All(ctx context.Context) (map[string]string, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Seed inserts values whose keys are absent and leaves existing ones.
	Seed(ctx context.Context, values map[string]string) error
}

// ScanResultStore persists batch scan output.
type ScanResultStore interface {
	InsertBatch(ctx context.Context, results []ScanResult) ([]int64, error)
	MarkAutoTraded(ctx context.Context, id, positionID int64) error
	ListRecent(ctx context.Context, limit int) ([]ScanResult, error)
	DeleteAll(ctx context.Context) error
}

// EquityStore persists daily equity snapshots.
type EquityStore interface {
	Upsert(ctx context.Context, snap EquitySnapshot) error
	List(ctx context.Context) ([]EquitySnapshot, error)
	DeleteAll(ctx context.Context) error
}

// Notification is a persisted human-readable action line.
type Notification struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationStore persists notifications for the dashboard.
type NotificationStore interface {
	Insert(ctx context.Context, n Notification) error
	ListRecent(ctx context.Context, limit int) ([]Notification, error)
	DeleteAll(ctx context.Context) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// BarProvider returns daily bars for symbol within [start, end]. An empty
// series with a nil error means the source had no data.
type BarProvider interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) (BarSeries, error)
}

// QuoteProvider returns the latest traded price for symbol.
type QuoteProvider interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// BarArchive stores historical daily bars.
type BarArchive interface {
	SaveBars(ctx context.Context, series BarSeries) error
	LoadBars(ctx context.Context, symbol string, start, end time.Time) (BarSeries, error)
}

// Notification levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notifier receives human-readable action lines. Emit is best-effort and
// never fails the caller.
type Notifier interface {
	Emit(ctx context.Context, level, message string)
}
