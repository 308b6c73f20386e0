// Package alpaca provides daily bars and latest trade prices from the Alpaca
// market-data API.
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Config holds credentials and request options for the market-data client.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	// Feed is "iex" or "sip".
	Feed string
	// Adjustment is "raw", "split", "dividend" or "all".
	Adjustment string
	// Location converts bar timestamps to trading days.
	Location *time.Location
}

// Client is a domain.BarProvider and domain.QuoteProvider over Alpaca.
type Client struct {
	md         *marketdata.Client
	feed       string
	adjustment marketdata.Adjustment
	loc        *time.Location
}

var (
	_ domain.BarProvider   = (*Client)(nil)
	_ domain.QuoteProvider = (*Client)(nil)
)

// NewClient creates a market-data client.
func NewClient(cfg Config) *Client {
	adj := marketdata.Adjustment(strings.ToLower(strings.TrimSpace(cfg.Adjustment)))
	if adj == "" {
		adj = marketdata.All
	}
	loc := cfg.Location
	if loc == nil {
		if ny, err := time.LoadLocation("America/New_York"); err == nil {
			loc = ny
		} else {
			loc = time.UTC
		}
	}
	return &Client{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		feed:       strings.ToLower(strings.TrimSpace(cfg.Feed)),
		adjustment: adj,
		loc:        loc,
	}
}

// FetchBars returns daily bars for symbol within [start, end].
func (c *Client) FetchBars(ctx context.Context, symbol string, start, end time.Time) (domain.BarSeries, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: c.adjustment,
		Start:      start,
		// Daily bars are stamped after midnight UTC; widen so end's bar is kept.
		End:  end.AddDate(0, 0, 1),
		Feed: marketdata.Feed(c.feed),
	}
	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return c.md.GetBars(symbol, req)
	})
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("alpaca: bars %s: %w", symbol, err)
	}

	out := domain.BarSeries{Symbol: symbol, Bars: make([]domain.Bar, 0, len(bars))}
	for _, b := range bars {
		day := domain.TradingDay(b.Timestamp, c.loc)
		if day.After(end) {
			continue
		}
		out.Bars = append(out.Bars, domain.Bar{
			Date:   day,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return out, nil
}

// LatestPrice returns the price of the most recent trade in symbol.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	trade, err := call(ctx, func() (*marketdata.Trade, error) {
		return c.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: marketdata.Feed(c.feed)})
	})
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest trade %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("alpaca: latest trade %s: %w", symbol, domain.ErrNoData)
	}
	return trade.Price, nil
}

// call runs fn, which cannot be cancelled, and returns early when ctx ends.
// The abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}
