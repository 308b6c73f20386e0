// Package notify delivers the engine's action lines. Sink is the
// domain.Notifier the engine writes to: it persists each line, broadcasts it
// on the bus for the dashboard, and forwards selected levels to chat senders.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one outbound chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Dispatcher fans a message out to every sender whose level filter passes.
type Dispatcher struct {
	senders []Sender
	levels  map[string]bool
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. levels lists the notification levels
// that are forwarded; an empty list forwards every level.
func NewDispatcher(senders []Sender, levels []string, logger *slog.Logger) *Dispatcher {
	allowed := make(map[string]bool, len(levels))
	for _, l := range levels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			allowed[l] = true
		}
	}
	return &Dispatcher{
		senders: senders,
		levels:  allowed,
		logger:  logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Wants reports whether messages at level are forwarded.
func (d *Dispatcher) Wants(level string) bool {
	if len(d.senders) == 0 {
		return false
	}
	return len(d.levels) == 0 || d.levels[level]
}

// Dispatch sends to every sender. One sender failing does not stop the
// others; all failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, level, message string) error {
	if !d.Wants(level) {
		return nil
	}
	title := "swingbot " + level
	var errs []error
	for _, s := range d.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		d.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
