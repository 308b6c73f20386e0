package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// PriceCache implements domain.PriceCache. Each symbol is a hash at
// "price:<SYMBOL>" with fields price and ts (Unix nanoseconds).
type PriceCache struct {
	c *Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by c.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

// SetPrice stores the latest price for symbol and refreshes its TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := pc.c.key("price", symbol)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodePrice(price, ts))
	if ttl := pc.c.cfg.PriceTTL; ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns domain.ErrNotFound when symbol has no cached price.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	price, ts, err := decodePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", symbol, err)
	}
	return price, ts, nil
}

// GetPrices fetches many symbols in one pipeline. Symbols without a usable
// cached price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(symbols))
	for i, sym := range symbols {
		cmds[i] = pipe.HGetAll(ctx, pc.c.key("price", sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := decodePrice(vals); err == nil {
			out[symbols[i]] = price
		}
	}
	return out, nil
}

func encodePrice(price float64, ts time.Time) map[string]any {
	return map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
}

func decodePrice(vals map[string]string) (float64, time.Time, error) {
	raw, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if price <= 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}
	var ts time.Time
	if rawTS, ok := vals["ts"]; ok {
		n, err := strconv.ParseInt(rawTS, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse ts %q: %w", rawTS, err)
		}
		ts = time.Unix(0, n).UTC()
	}
	return price, ts, nil
}
