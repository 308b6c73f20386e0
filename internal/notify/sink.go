package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Event is the bus payload for one action line.
type Event struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink implements domain.Notifier. Every collaborator is optional; a Sink
// with none of them only logs.
type Sink struct {
	store      domain.NotificationStore
	bus        domain.SignalBus
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

var _ domain.Notifier = (*Sink)(nil)

// NewSink creates a Sink. store, bus and dispatcher may be nil.
func NewSink(store domain.NotificationStore, bus domain.SignalBus, dispatcher *Dispatcher, logger *slog.Logger) *Sink {
	return &Sink{
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "notify_sink")),
		now:        time.Now,
	}
}

// Emit records message at level. Failures are logged and swallowed.
func (s *Sink) Emit(ctx context.Context, level, message string) {
	if level == "" {
		level = domain.LevelInfo
	}
	ev := Event{Level: level, Message: message, At: s.now().UTC()}

	if s.store != nil {
		n := domain.Notification{Level: level, Message: message, CreatedAt: ev.At}
		if err := s.store.Insert(ctx, n); err != nil {
			s.warn(ctx, "persist notification failed", err)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.warn(ctx, "encode notification failed", err)
		} else {
			if err := s.bus.Publish(ctx, domain.ChannelActions, payload); err != nil {
				s.warn(ctx, "publish notification failed", err)
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamActions, payload); err != nil {
				s.warn(ctx, "stream notification failed", err)
			}
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, level, message); err != nil {
			s.warn(ctx, "forward notification failed", err)
		}
	}
}

func (s *Sink) warn(ctx context.Context, msg string, err error) {
	s.logger.WarnContext(ctx, msg, slog.String("error", err.Error()))
}
