package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketforge/mmaker/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// price vector is stored as a hash at key "prices:{marketID}" with one field
// per outcome ID plus a "ts" field (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.rdb}
}

func pricesKey(marketID string) string {
	return "prices:" + marketID
}

// SetPrices stores the full coin-unit price vector for a market. The vector
// is replaced atomically so readers never observe a partial update.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID string, prices map[domain.OutcomeID]int64, ts time.Time) error {
	key := pricesKey(marketID)
	fields := make(map[string]interface{}, len(prices)+1)
	for id, coins := range prices {
		fields[strconv.FormatInt(int64(id), 10)] = strconv.FormatInt(coins, 10)
	}
	fields["ts"] = strconv.FormatInt(ts.UnixNano(), 10)

	pipe := pc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the cached price vector for a market. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) (map[domain.OutcomeID]int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pricesKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	var ts time.Time
	prices := make(map[domain.OutcomeID]int64, len(vals))
	for field, raw := range vals {
		if field == "ts" {
			tsNano, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("redis: parse ts for %s: %w", marketID, err)
			}
			ts = time.Unix(0, tsNano)
			continue
		}
		id, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse outcome %q for %s: %w", field, marketID, err)
		}
		coins, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse price %q for %s: %w", raw, marketID, err)
		}
		prices[domain.OutcomeID(id)] = coins
	}

	return prices, ts, nil
}

// Invalidate removes the cached price vector for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, pricesKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
