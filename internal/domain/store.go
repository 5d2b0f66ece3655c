package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market metadata.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// LedgerStore is the durable append-only backing for a market's order
// ledger. Append must be atomic; ListFrom must return entries with ID > from
// in ascending ID order. The store does not validate ordering; the
// in-process ledger owns that and is the store's single writer per market.
type LedgerStore interface {
	Append(ctx context.Context, o Order) error
	ListFrom(ctx context.Context, marketID string, from OrderID, limit int) ([]Order, error)
	LastID(ctx context.Context, marketID string) (OrderID, error)
}

// PriceCache provides fast access to the latest coin-unit price vector of a
// market.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, prices map[OutcomeID]int64, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) (map[OutcomeID]int64, time.Time, error)
	Invalidate(ctx context.Context, marketID string) error
}

// SignalBus publishes engine events (price updates, market status changes)
// to interested consumers such as the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter limits request rates per key across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to long-term storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// LedgerArchiver exports a market's complete order log to long-term storage
// once the market has resolved.
type LedgerArchiver interface {
	ArchiveLedger(ctx context.Context, m Market, orders []Order) (path string, err error)
}
