package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock hands out strictly increasing timestamps so appends never trip
// the ledger's ordering check.
func testClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func testMarket(status domain.MarketStatus) domain.Market {
	return domain.Market{
		ID:         "mkt_1",
		Title:      "Who wins",
		LiquidityB: 100,
		Outcomes:   []domain.Outcome{{ID: 1, Name: "yes"}, {ID: 2, Name: "no"}},
		Status:     status,
	}
}

func newMaker(t *testing.T, status domain.MarketStatus) *MarketMaker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = testClock()
	mm, err := New(testMarket(status), ledger.New("mkt_1", nil), cfg, testLogger())
	require.NoError(t, err)
	return mm
}

func TestNewValidation(t *testing.T) {
	cfg := DefaultConfig()
	log := ledger.New("mkt_1", nil)

	m := testMarket(domain.MarketStatusUpcoming)
	m.Outcomes = m.Outcomes[:1]
	_, err := New(m, log, cfg, testLogger())
	assert.Error(t, err)

	m = testMarket(domain.MarketStatusUpcoming)
	m.LiquidityB = 0
	_, err = New(m, log, cfg, testLogger())
	assert.ErrorIs(t, err, domain.ErrNumericRange)

	_, err = New(testMarket(domain.MarketStatusUpcoming), log, Config{SeedCoins: 0, RedemptionCoins: 1000}, testLogger())
	assert.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)

	m, err := mm.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)

	_, err = mm.Open(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	m, err = mm.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, m.Status)

	_, err = mm.Close(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)

	_, err := mm.Seed(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)

	_, err = mm.Open(ctx)
	require.NoError(t, err)

	o, err := mm.Seed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderKindSeed, o.Kind)
	assert.Equal(t, int64(10000), o.CoinDelta)
	assert.Equal(t, int64(0), o.TokenDelta)

	_, err = mm.Seed(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Other accounts seed independently.
	_, err = mm.Seed(ctx, "bob")
	assert.NoError(t, err)
}

func TestExecuteBuyAndSell(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)
	_, err := mm.Open(ctx)
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "alice")
	require.NoError(t, err)

	// b=100, from the zero state: 10 units cost
	// floor(1000 * 100*ln(1+e^0.1)) - floor(1000 * 100*ln(2)) = 5125 coins.
	o, err := mm.Execute(ctx, "alice", 1, 10, 6000)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderKindTrade, o.Kind)
	assert.Equal(t, int64(10), o.TokenDelta)
	assert.Equal(t, int64(-5125), o.CoinDelta)

	q, _ := mm.Snapshot().Get(1)
	assert.Equal(t, int64(10), q)

	// Prices moved toward the bought outcome.
	prices := mm.Prices()
	require.Len(t, prices, 2)
	assert.Greater(t, prices[0], prices[1])

	// Selling the full position back at the same distribution returns the
	// same amount. maxCost is the minimum acceptable proceeds, negated.
	o, err = mm.Execute(ctx, "alice", 1, -10, -5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5125), o.CoinDelta)

	q, _ = mm.Snapshot().Get(1)
	assert.Equal(t, int64(0), q)
	require.NoError(t, mm.CheckConsistency())
}

func TestExecuteGuards(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)

	_, err := mm.Execute(ctx, "alice", 1, 10, 6000)
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)

	_, err = mm.Open(ctx)
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "alice")
	require.NoError(t, err)

	_, err = mm.Execute(ctx, "alice", 1, 0, 6000)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = mm.Execute(ctx, "alice", 9, 10, 6000)
	assert.ErrorIs(t, err, domain.ErrUnknownOutcome)

	// Quantity pushes |q|/b past the exponent budget.
	_, err = mm.Execute(ctx, "alice", 1, 80000, 1<<40)
	assert.ErrorIs(t, err, domain.ErrNumericRange)

	// Bound below the actual cost of 5125.
	_, err = mm.Execute(ctx, "alice", 1, 10, 5124)
	assert.ErrorIs(t, err, domain.ErrPriceSlipped)

	// Costs far more coins than the 10000 seed.
	_, err = mm.Execute(ctx, "alice", 1, 2000, 1<<40)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Selling tokens the account does not hold.
	_, err = mm.Execute(ctx, "alice", 1, -5, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// No guard failure left a ledger entry behind.
	assert.Equal(t, 1, mm.Ledger().Len())
	require.NoError(t, mm.CheckConsistency())
}

func TestExecuteSellProceedsBound(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)
	_, err := mm.Open(ctx)
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "alice")
	require.NoError(t, err)
	_, err = mm.Execute(ctx, "alice", 1, 10, 6000)
	require.NoError(t, err)

	// The sell yields 5125; demanding 6000 minimum slips.
	_, err = mm.Execute(ctx, "alice", 1, -10, -6000)
	assert.ErrorIs(t, err, domain.ErrPriceSlipped)
}

// TestExecuteConcurrent hammers one market from many goroutines and checks
// that the maker serialized every commit: no lost trades, dense order IDs,
// and a live distribution that matches the replayed ledger.
func TestExecuteConcurrent(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.SeedCoins = 1_000_000
	cfg.Now = testClock()
	mm, err := New(testMarket(domain.MarketStatusUpcoming), ledger.New("mkt_1", nil), cfg, testLogger())
	require.NoError(t, err)
	_, err = mm.Open(ctx)
	require.NoError(t, err)

	const (
		workers = 16
		trades  = 20
	)
	accounts := make([]string, workers)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("acct_%02d", i)
		_, err := mm.Seed(ctx, accounts[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(account string, outcome domain.OutcomeID) {
			defer wg.Done()
			for j := 0; j < trades; j++ {
				if _, err := mm.Execute(ctx, account, outcome, 1, 1_000_000); err != nil {
					t.Errorf("execute %s: %v", account, err)
					return
				}
			}
		}(accounts[i], domain.OutcomeID(i%2+1))
	}
	wg.Wait()

	total := workers + workers*trades
	require.Equal(t, total, mm.Ledger().Len())

	// Every commit took the next ID in turn.
	cur := mm.Ledger().IterateFrom(1)
	var last domain.OrderID
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		last++
		assert.Equal(t, last, o.ID)
	}
	assert.Equal(t, domain.OrderID(total), last)

	q1, ok := mm.Snapshot().Get(1)
	require.True(t, ok)
	q2, ok := mm.Snapshot().Get(2)
	require.True(t, ok)
	assert.Equal(t, int64(workers/2*trades), q1)
	assert.Equal(t, int64(workers/2*trades), q2)
	require.NoError(t, mm.CheckConsistency())
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	mm := newMaker(t, domain.MarketStatusUpcoming)
	_, err := mm.Open(ctx)
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "alice")
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "bob")
	require.NoError(t, err)
	_, err = mm.Execute(ctx, "alice", 1, 10, 6000)
	require.NoError(t, err)
	_, err = mm.Execute(ctx, "bob", 2, 20, 11000)
	require.NoError(t, err)

	_, _, err = mm.Resolve(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = mm.Close(ctx)
	require.NoError(t, err)

	_, _, err = mm.Resolve(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrUnknownOutcome)

	m, settled, err := mm.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, domain.OutcomeID(1), *m.WinningOutcome)

	// One settlement per held (account, outcome), accounts in sorted order.
	require.Len(t, settled, 2)
	assert.Equal(t, "alice", settled[0].AccountID)
	assert.Equal(t, int64(-10), settled[0].TokenDelta)
	assert.Equal(t, int64(10*1000), settled[0].CoinDelta)
	assert.Equal(t, "bob", settled[1].AccountID)
	assert.Equal(t, int64(-20), settled[1].TokenDelta)
	assert.Equal(t, int64(0), settled[1].CoinDelta)

	// Settlement consumed every outstanding token.
	dist := mm.Snapshot()
	for _, id := range []domain.OutcomeID{1, 2} {
		q, _ := dist.Get(id)
		assert.Equal(t, int64(0), q)
	}

	// Alice ends up with seed - cost + redemption.
	h := ledger.Holdings(mm.Ledger().IterateFrom(0), "alice")
	assert.Equal(t, int64(10000-5125+10000), h.Coins)
	assert.Equal(t, int64(0), h.Token(1))

	_, _, err = mm.Resolve(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.NoError(t, mm.CheckConsistency())
}

func TestReplayRebuildsLiveDistribution(t *testing.T) {
	ctx := context.Background()
	log := ledger.New("mkt_1", nil)
	cfg := DefaultConfig()
	cfg.Now = testClock()

	mm, err := New(testMarket(domain.MarketStatusUpcoming), log, cfg, testLogger())
	require.NoError(t, err)
	_, err = mm.Open(ctx)
	require.NoError(t, err)
	_, err = mm.Seed(ctx, "alice")
	require.NoError(t, err)
	_, err = mm.Execute(ctx, "alice", 1, 10, 6000)
	require.NoError(t, err)
	_, err = mm.Execute(ctx, "alice", 2, 3, 6000)
	require.NoError(t, err)

	// A maker rebuilt over the same ledger lands on the same distribution.
	rebuilt, err := New(testMarket(domain.MarketStatusOpen), log, cfg, testLogger())
	require.NoError(t, err)
	assert.True(t, rebuilt.Snapshot().Equal(mm.Snapshot()))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	mm := newMaker(t, domain.MarketStatusUpcoming)

	require.NoError(t, r.Add(mm))
	assert.ErrorIs(t, r.Add(mm), domain.ErrAlreadyExists)

	got, err := r.Get("mkt_1")
	require.NoError(t, err)
	assert.Same(t, mm, got)

	_, err = r.Get("mkt_9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, []string{"mkt_1"}, r.MarketIDs())
}
