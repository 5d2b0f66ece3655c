// Package ledger provides the append-only, time-ordered order log for one
// market. The ledger is dumb storage with validation: it trusts the market
// maker to be its single writer and rejects anything that breaks the total
// order. Reads are snapshot-isolated and never block the writer.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketforge/mmaker/internal/domain"
)

// rehydrateBatch is the page size used when reloading a ledger from its
// durable store at boot.
const rehydrateBatch = 1000

// Ledger is the in-memory authoritative order log for one market, with
// write-through to a durable LedgerStore. Appends go to the store first;
// an entry becomes visible to readers only after both writes succeed.
type Ledger struct {
	marketID string
	store    domain.LedgerStore // nil for purely in-memory ledgers (tests)

	mu     sync.RWMutex
	orders []domain.Order
}

// New creates an empty ledger for the given market. store may be nil, in
// which case the ledger lives only in memory.
func New(marketID string, store domain.LedgerStore) *Ledger {
	return &Ledger{marketID: marketID, store: store}
}

// Rehydrate loads all previously committed entries from the durable store.
// Must be called before the first Append and before readers attach.
func (l *Ledger) Rehydrate(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := domain.OrderID(0)
	for {
		// ListFrom is exclusive: entries with ID > from.
		batch, err := l.store.ListFrom(ctx, l.marketID, from, rehydrateBatch)
		if err != nil {
			return fmt.Errorf("ledger: rehydrate %s: %w", l.marketID, err)
		}
		for _, o := range batch {
			if err := l.admit(o); err != nil {
				return fmt.Errorf("ledger: rehydrate %s: corrupt log: %w", l.marketID, err)
			}
		}
		if len(batch) < rehydrateBatch {
			break
		}
		from = batch[len(batch)-1].ID
	}

	// IDs are dense from 1, so the store's high-water mark must equal the
	// number of entries loaded. A shortfall means the listing lost part of
	// the log and the ledger must not come up over it.
	last, err := l.store.LastID(ctx, l.marketID)
	if err != nil {
		return fmt.Errorf("ledger: rehydrate %s: %w", l.marketID, err)
	}
	if loaded := domain.OrderID(len(l.orders)); loaded != last {
		return fmt.Errorf("%w: rehydrated %d entries for %s, store reports last id %d",
			domain.ErrLedgerConflict, loaded, l.marketID, last)
	}
	return nil
}

// Append validates o, assigns it the next OrderID, writes it through to the
// durable store, and exposes it to readers. Only the market maker calls
// Append, already serialized per market; the validation here exists to turn
// a broken serialization into a loud domain.ErrLedgerConflict instead of a
// silently reordered log.
func (l *Ledger) Append(ctx context.Context, o domain.Order) (domain.Order, error) {
	if err := o.Validate(); err != nil {
		return domain.Order{}, err
	}
	if o.MarketID != l.marketID {
		return domain.Order{}, fmt.Errorf("%w: order for market %s appended to ledger %s",
			domain.ErrLedgerConflict, o.MarketID, l.marketID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := domain.OrderID(len(l.orders)) + 1
	if o.ID == 0 {
		o.ID = next
	}
	if err := l.check(o, next); err != nil {
		return domain.Order{}, err
	}

	if l.store != nil {
		if err := l.store.Append(ctx, o); err != nil {
			return domain.Order{}, fmt.Errorf("ledger: durable append %s/%d: %w", l.marketID, o.ID, err)
		}
	}
	l.orders = append(l.orders, o)
	return o, nil
}

// check enforces the total-order invariants against the last committed
// entry. Caller holds the write lock.
func (l *Ledger) check(o domain.Order, next domain.OrderID) error {
	if o.ID != next {
		return fmt.Errorf("%w: order id %d, expected %d", domain.ErrLedgerConflict, o.ID, next)
	}
	if n := len(l.orders); n > 0 && o.Time.Before(l.orders[n-1].Time) {
		return fmt.Errorf("%w: timestamp regression at id %d", domain.ErrLedgerConflict, o.ID)
	}
	return nil
}

// admit appends an already-durable entry during rehydration, with the same
// ordering checks. Caller holds the write lock.
func (l *Ledger) admit(o domain.Order) error {
	if err := l.check(o, domain.OrderID(len(l.orders))+1); err != nil {
		return err
	}
	l.orders = append(l.orders, o)
	return nil
}

// Len returns the number of committed entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

// MarketID returns the market this ledger belongs to.
func (l *Ledger) MarketID() string {
	return l.marketID
}

// IterateFrom returns a cursor over committed entries with ID >= from, in
// ascending ID order. The cursor sees exactly the entries committed before
// this call: appends never mutate prior entries and append-only growth means
// the captured slice header is a stable snapshot.
func (l *Ledger) IterateFrom(from domain.OrderID) *Cursor {
	l.mu.RLock()
	snap := l.orders[:len(l.orders):len(l.orders)]
	l.mu.RUnlock()

	pos := 0
	if from > 1 {
		// IDs are dense starting at 1, so the start offset is direct.
		pos = int(from) - 1
		if pos > len(snap) {
			pos = len(snap)
		}
	}
	return &Cursor{orders: snap, pos: pos, start: pos}
}

// Cursor is a restartable forward iterator over a ledger snapshot.
type Cursor struct {
	orders []domain.Order
	pos    int
	start  int
}

// Next returns the next entry, or ok=false when the snapshot is exhausted.
func (c *Cursor) Next() (domain.Order, bool) {
	if c.pos >= len(c.orders) {
		return domain.Order{}, false
	}
	o := c.orders[c.pos]
	c.pos++
	return o, true
}

// Rewind resets the cursor to its starting position.
func (c *Cursor) Rewind() {
	c.pos = c.start
}

// Remaining returns how many entries the cursor has not yet yielded.
func (c *Cursor) Remaining() int {
	return len(c.orders) - c.pos
}
