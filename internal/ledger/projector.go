package ledger

import (
	"sort"
	"time"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/lmsr"
)

// The projector reconstructs derived state by folding a ledger cursor from
// the all-zero starting point. It never touches live state, so projections
// are safe to run concurrently with trading; the fold over the identical
// order sequence is guaranteed to land on the same distribution the market
// maker holds live.

// Replay folds every entry the cursor yields into a fresh distribution over
// the given outcomes. Seed orders contribute nothing; trades and settlements
// apply their token deltas.
func Replay(c *Cursor, outcomes []domain.OutcomeID) (*domain.Distribution, error) {
	return ReplayUpTo(c, outcomes, 0)
}

// ReplayUpTo is Replay bounded to entries with ID <= upto. upto == 0 means
// unbounded.
func ReplayUpTo(c *Cursor, outcomes []domain.OutcomeID, upto domain.OrderID) (*domain.Distribution, error) {
	dist := domain.NewDistribution(outcomes)
	for {
		o, ok := c.Next()
		if !ok || (upto > 0 && o.ID > upto) {
			return dist, nil
		}
		switch o.Kind {
		case domain.OrderKindSeed:
			// coins only, nothing outstanding changes
		case domain.OrderKindTrade, domain.OrderKindSettlement:
			if err := dist.Apply(o.Outcome, o.TokenDelta); err != nil {
				return nil, err
			}
		}
	}
}

// Holdings folds one account's entries into its derived coin and token
// balances.
func Holdings(c *Cursor, accountID string) *domain.Holdings {
	h := domain.NewHoldings(accountID)
	for {
		o, ok := c.Next()
		if !ok {
			return h
		}
		if o.AccountID == accountID {
			h.Fold(o)
		}
	}
}

// AllHoldings folds the whole ledger into per-account holdings. Used by the
// settlement pass; the returned accounts are sorted for deterministic
// settlement order.
func AllHoldings(c *Cursor) (map[string]*domain.Holdings, []string) {
	byAccount := make(map[string]*domain.Holdings)
	for {
		o, ok := c.Next()
		if !ok {
			break
		}
		h, seen := byAccount[o.AccountID]
		if !seen {
			h = domain.NewHoldings(o.AccountID)
			byAccount[o.AccountID] = h
		}
		h.Fold(o)
	}

	accounts := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)
	return byAccount, accounts
}

// PricePoint is one sample of the market's price history: the coin-unit
// price per outcome (fixed outcome order) immediately after OrderID
// committed. The initial point carries OrderID 0 and the market's open time.
type PricePoint struct {
	OrderID domain.OrderID `json:"order_id"`
	Time    time.Time      `json:"time"`
	Coins   []int64        `json:"coins"`
}

// SeriesIter lazily replays a ledger snapshot into a price time-series: one
// initial point at market open over the all-zero distribution, then one
// point per trade. Finite, and restartable via Rewind.
type SeriesIter struct {
	cursor   *Cursor
	b        float64
	openTime time.Time
	dist     *domain.Distribution
	emitted  bool // initial point emitted
}

// PriceSeries creates a price-history iterator over the cursor's snapshot.
// The fold is only meaningful from the log's beginning, so the cursor is
// rebased to the start of its snapshot regardless of the offset it was
// opened at; Rewind then restarts the full series too.
func PriceSeries(c *Cursor, m domain.Market) *SeriesIter {
	return &SeriesIter{
		cursor:   &Cursor{orders: c.orders},
		b:        m.LiquidityB,
		openTime: m.OpenTime,
		dist:     domain.NewDistribution(m.OutcomeIDs()),
	}
}

// Next returns the next price point, or ok=false when the series is
// exhausted.
func (it *SeriesIter) Next() (PricePoint, bool) {
	if !it.emitted {
		it.emitted = true
		return PricePoint{OrderID: 0, Time: it.openTime, Coins: it.coins()}, true
	}

	for {
		o, ok := it.cursor.Next()
		if !ok {
			return PricePoint{}, false
		}
		if o.Kind != domain.OrderKindTrade {
			continue
		}
		if err := it.dist.Apply(o.Outcome, o.TokenDelta); err != nil {
			// Entries were validated at append; an unknown outcome here
			// means the market definition and ledger disagree.
			return PricePoint{}, false
		}
		return PricePoint{OrderID: o.ID, Time: o.Time, Coins: it.coins()}, true
	}
}

// Rewind restarts the series from the initial point.
func (it *SeriesIter) Rewind() {
	it.cursor.Rewind()
	it.dist = domain.NewDistribution(it.dist.OutcomeIDs())
	it.emitted = false
}

func (it *SeriesIter) coins() []int64 {
	prices := lmsr.Prices(it.b, it.dist.Quantities())
	coins := make([]int64, len(prices))
	for i, p := range prices {
		coins[i] = lmsr.ToCoins(p)
	}
	return coins
}
