package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func TestJoinKey(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"", []string{"price", "AAPL"}, "price:AAPL"},
		{"swingbot", []string{"lock", "trade-cycle"}, "swingbot:lock:trade-cycle"},
		{"swingbot", []string{domain.ChannelActions}, "swingbot:ch:actions"},
		{"", nil, ""},
	}
	for _, tt := range tests {
		if got := joinKey(tt.prefix, tt.parts...); got != tt.want {
			t.Errorf("joinKey(%q, %v) = %q, want %q", tt.prefix, tt.parts, got, tt.want)
		}
	}
}

func TestPriceEncodingRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	enc := encodePrice(187.125, ts)
	vals := map[string]string{}
	for k, v := range enc {
		vals[k] = v.(string)
	}
	price, got, err := decodePrice(vals)
	if err != nil {
		t.Fatalf("decodePrice: %v", err)
	}
	if price != 187.125 || !got.Equal(ts) {
		t.Fatalf("decoded %v @ %v, want 187.125 @ %v", price, got, ts)
	}
}

func TestDecodePriceRejects(t *testing.T) {
	tests := []struct {
		name     string
		vals     map[string]string
		notFound bool
	}{
		{"missing", map[string]string{}, true},
		{"zero", map[string]string{"price": "0"}, true},
		{"garbage price", map[string]string{"price": "abc"}, false},
		{"garbage ts", map[string]string{"price": "1.5", "ts": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodePrice(tt.vals)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, domain.ErrNotFound); got != tt.notFound {
				t.Fatalf("errors.Is(ErrNotFound) = %v, want %v (%v)", got, tt.notFound, err)
			}
		})
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		limit  int
		window time.Duration
		want   time.Duration
	}{
		{200, time.Minute, 250 * time.Millisecond},
		{10, time.Second, 100 * time.Millisecond},
		{1000, time.Second, 10 * time.Millisecond},
		{0, time.Second, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := pollInterval(tt.limit, tt.window); got != tt.want {
			t.Errorf("pollInterval(%d, %s) = %s, want %s", tt.limit, tt.window, got, tt.want)
		}
	}
}

func TestPayloadBytes(t *testing.T) {
	if b, ok := payloadBytes("x"); !ok || string(b) != "x" {
		t.Fatalf("string payload = %q, %v", b, ok)
	}
	if b, ok := payloadBytes([]byte("y")); !ok || string(b) != "y" {
		t.Fatalf("bytes payload = %q, %v", b, ok)
	}
	if _, ok := payloadBytes(42); ok {
		t.Fatal("int payload accepted")
	}
}
