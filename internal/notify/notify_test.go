package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name string
	err  error
	got  []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.got = append(f.got, title+"|"+message)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestDispatcherLevelFilter(t *testing.T) {
	s := &fakeSender{name: "a"}
	d := NewDispatcher([]Sender{s}, []string{" Warning ", "error"}, testLogger())

	ctx := context.Background()
	if err := d.Dispatch(ctx, domain.LevelInfo, "Bought AAPL @ $190.00 (score 85)"); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(ctx, domain.LevelWarning, "Circuit breaker tripped: x"); err != nil {
		t.Fatal(err)
	}
	if len(s.got) != 1 || s.got[0] != "swingbot warning|Circuit breaker tripped: x" {
		t.Fatalf("sent = %v", s.got)
	}

	all := NewDispatcher([]Sender{s}, nil, testLogger())
	if !all.Wants(domain.LevelInfo) {
		t.Fatal("empty filter should forward every level")
	}
	if NewDispatcher(nil, nil, testLogger()).Wants(domain.LevelError) {
		t.Fatal("dispatcher without senders wants nothing")
	}
}

func TestDispatcherContinuesPastFailure(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	d := NewDispatcher([]Sender{bad, good}, nil, testLogger())

	err := d.Dispatch(context.Background(), domain.LevelError, "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v", err)
	}
	if len(good.got) != 1 {
		t.Fatal("good sender skipped after failure")
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "title", "STOP HIT: AAPL sold 10 @ $180.00"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if body["chat_id"] != "42" || body["text"] != "title\nSTOP HIT: AAPL sold 10 @ $180.00" {
		t.Fatalf("body = %v", body)
	}
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "discord: unexpected status 429") {
		t.Fatalf("err = %v", err)
	}
}

type failingBus struct{ *memory.Bus }

func (failingBus) Publish(context.Context, string, []byte) error {
	return errors.New("redis down")
}

func TestSinkEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewNotificationStore()
	bus := memory.NewBus(0)
	sub, _ := bus.Subscribe(ctx, domain.ChannelActions)
	sender := &fakeSender{name: "chat"}
	sink := NewSink(store, bus, NewDispatcher([]Sender{sender}, []string{"info"}, testLogger()), testLogger())
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return at }

	sink.Emit(ctx, "", "Bought AAPL @ $190.00 (score 85)")

	items, _ := store.ListRecent(ctx, 10)
	if len(items) != 1 || items[0].Level != domain.LevelInfo || !items[0].CreatedAt.Equal(at) {
		t.Fatalf("stored = %+v", items)
	}

	var ev Event
	if err := json.Unmarshal(<-sub, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Message != "Bought AAPL @ $190.00 (score 85)" || !ev.At.Equal(at) {
		t.Fatalf("event = %+v", ev)
	}
	stream, _ := bus.StreamRead(ctx, domain.StreamActions, "0", 10)
	if len(stream) != 1 {
		t.Fatalf("stream entries = %d", len(stream))
	}
	if len(sender.got) != 1 {
		t.Fatalf("forwarded = %v", sender.got)
	}
}

func TestSinkSwallowsFailures(t *testing.T) {
	bus := failingBus{memory.NewBus(0)}
	sink := NewSink(nil, bus, nil, testLogger())
	sink.Emit(context.Background(), domain.LevelError, "x")

	stream, _ := bus.StreamRead(context.Background(), domain.StreamActions, "0", 10)
	if len(stream) != 1 {
		t.Fatal("stream append skipped after publish failure")
	}
}
