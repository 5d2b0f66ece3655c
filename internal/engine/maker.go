// Package engine contains the market maker: the single writer that prices
// trades against a market's live distribution and commits them to its order
// ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/ledger"
	"github.com/marketforge/mmaker/internal/lmsr"
)

// Config holds the engine parameters fixed at market-maker construction.
type Config struct {
	// SeedCoins is the starting coin balance granted by a seed order.
	SeedCoins int64
	// RedemptionCoins is the coin payout per unit of the winning outcome at
	// settlement. A flat constant, deliberately not derived from the
	// liquidity parameter.
	RedemptionCoins int64
	// Now supplies order timestamps; defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultConfig mirrors the production constants: 10000 starting coins and a
// 1000-coin redemption per winning token.
func DefaultConfig() Config {
	return Config{SeedCoins: 10000, RedemptionCoins: 1000}
}

// MarketMaker serializes all writes to one market's distribution and order
// ledger. Everything between reading the distribution and committing the
// trade happens under the per-market mutex; cross-market makers are fully
// independent. Reads through the ledger's cursors never take this lock.
type MarketMaker struct {
	mu     sync.Mutex
	market domain.Market
	dist   *domain.Distribution
	log    *ledger.Ledger
	cfg    Config
	logger *slog.Logger

	// halted is set when the ledger reports an ordering conflict. That means
	// the serialization above it is broken, so the market stops accepting
	// writes rather than risk a diverging distribution.
	halted bool
}

// New builds a market maker over an already-rehydrated ledger, replaying it
// to reconstruct the live distribution.
func New(market domain.Market, log *ledger.Ledger, cfg Config, logger *slog.Logger) (*MarketMaker, error) {
	if len(market.Outcomes) < 2 {
		return nil, fmt.Errorf("engine: market %s needs at least two outcomes", market.ID)
	}
	if err := lmsr.CheckRange(market.LiquidityB, nil); err != nil {
		return nil, fmt.Errorf("engine: market %s liquidity: %w", market.ID, err)
	}
	if cfg.SeedCoins <= 0 || cfg.RedemptionCoins < 0 {
		return nil, fmt.Errorf("engine: invalid config for market %s", market.ID)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	dist, err := ledger.Replay(log.IterateFrom(0), market.OutcomeIDs())
	if err != nil {
		return nil, fmt.Errorf("engine: replay market %s: %w", market.ID, err)
	}

	return &MarketMaker{
		market: market,
		dist:   dist,
		log:    log,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine"), slog.String("market_id", market.ID)),
	}, nil
}

// Market returns a copy of the market metadata.
func (mm *MarketMaker) Market() domain.Market {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.market
}

// Ledger exposes the market's order log for read-side consumers.
func (mm *MarketMaker) Ledger() *ledger.Ledger {
	return mm.log
}

// Snapshot returns an immutable copy of the live distribution.
func (mm *MarketMaker) Snapshot() *domain.Distribution {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.dist.Snapshot()
}

// Prices returns the current coin-unit price per outcome in fixed outcome
// order.
func (mm *MarketMaker) Prices() []int64 {
	mm.mu.Lock()
	q := mm.dist.Quantities()
	b := mm.market.LiquidityB
	mm.mu.Unlock()

	prices := lmsr.Prices(b, q)
	coins := make([]int64, len(prices))
	for i, p := range prices {
		coins[i] = lmsr.ToCoins(p)
	}
	return coins
}

// Open moves the market Upcoming -> Open.
func (mm *MarketMaker) Open(ctx context.Context) (domain.Market, error) {
	return mm.transition(ctx, domain.MarketStatusOpen)
}

// Close moves the market Open -> Closed. No further trades are accepted.
func (mm *MarketMaker) Close(ctx context.Context) (domain.Market, error) {
	return mm.transition(ctx, domain.MarketStatusClosed)
}

func (mm *MarketMaker) transition(_ context.Context, next domain.MarketStatus) (domain.Market, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if !mm.market.Status.CanTransitionTo(next) {
		return domain.Market{}, fmt.Errorf("engine: %s -> %s: %w",
			mm.market.Status, next, domain.ErrInvalidTransition)
	}
	mm.market.Status = next
	mm.market.UpdatedAt = mm.cfg.Now()
	mm.logger.Info("market status changed", slog.String("status", string(next)))
	return mm.market, nil
}

// Seed grants accountID its starting coin balance. Valid only while the
// market is Open, at most once per account.
func (mm *MarketMaker) Seed(ctx context.Context, accountID string) (domain.Order, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.halted {
		return domain.Order{}, fmt.Errorf("engine: market %s halted: %w", mm.market.ID, domain.ErrLedgerConflict)
	}
	if mm.market.Status != domain.MarketStatusOpen {
		return domain.Order{}, domain.ErrMarketNotOpen
	}
	if ledger.Holdings(mm.log.IterateFrom(0), accountID).Seeded {
		return domain.Order{}, fmt.Errorf("account %s already seeded: %w", accountID, domain.ErrAlreadyExists)
	}

	return mm.commit(ctx, domain.Order{
		MarketID:  mm.market.ID,
		AccountID: accountID,
		Kind:      domain.OrderKindSeed,
		CoinDelta: mm.cfg.SeedCoins,
		Time:      mm.cfg.Now(),
	})
}

// Execute prices and commits a trade of deltaQty tokens of the given
// outcome. maxCost bounds the coin cost in the trader-pays convention: a buy
// passes while cost <= maxCost, and a sell (negative cost, trader receives
// -cost) uses a negative maxCost to state its minimum acceptable proceeds.
// A guard failure of any kind leaves the distribution and ledger untouched;
// the engine never retries on the caller's behalf.
func (mm *MarketMaker) Execute(ctx context.Context, accountID string, outcome domain.OutcomeID, deltaQty, maxCost int64) (domain.Order, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.halted {
		return domain.Order{}, fmt.Errorf("engine: market %s halted: %w", mm.market.ID, domain.ErrLedgerConflict)
	}
	if mm.market.Status != domain.MarketStatusOpen {
		return domain.Order{}, domain.ErrMarketNotOpen
	}
	if deltaQty == 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	idx, ok := mm.dist.Index(outcome)
	if !ok {
		return domain.Order{}, domain.ErrUnknownOutcome
	}

	b := mm.market.LiquidityB
	q := mm.dist.Quantities()
	shifted := make([]float64, len(q))
	copy(shifted, q)
	shifted[idx] += float64(deltaQty)
	if err := lmsr.CheckRange(b, shifted); err != nil {
		return domain.Order{}, err
	}

	// Coin cost of moving the distribution, floored to coin units at this
	// boundary only. Positive: trader pays.
	cost := lmsr.ToCoins(lmsr.Cost(b, shifted)) - lmsr.ToCoins(lmsr.Cost(b, q))

	// Optimistic-concurrency guard: the caller computed maxCost against a
	// distribution it read earlier; a dearer cost now means the market moved
	// underneath it.
	if cost > maxCost {
		return domain.Order{}, fmt.Errorf("cost %d exceeds bound %d: %w", cost, maxCost, domain.ErrPriceSlipped)
	}

	h := ledger.Holdings(mm.log.IterateFrom(0), accountID)
	if deltaQty > 0 {
		if h.Coins-cost < 0 {
			return domain.Order{}, fmt.Errorf("account %s has %d coins, needs %d: %w",
				accountID, h.Coins, cost, domain.ErrInsufficientBalance)
		}
	} else {
		if h.Token(outcome)+deltaQty < 0 {
			return domain.Order{}, fmt.Errorf("account %s holds %d of outcome %d, sells %d: %w",
				accountID, h.Token(outcome), outcome, -deltaQty, domain.ErrInsufficientBalance)
		}
	}

	o, err := mm.commit(ctx, domain.Order{
		MarketID:   mm.market.ID,
		AccountID:  accountID,
		Kind:       domain.OrderKindTrade,
		Outcome:    outcome,
		TokenDelta: deltaQty,
		CoinDelta:  -cost,
		Time:       mm.cfg.Now(),
	})
	if err != nil {
		return domain.Order{}, err
	}

	// Committed: the ledger holds the entry, so the live vector must follow.
	if err := mm.dist.Apply(outcome, deltaQty); err != nil {
		mm.halted = true
		return domain.Order{}, fmt.Errorf("engine: apply after commit: %w", err)
	}
	return o, nil
}

// Resolve settles the market to the winning outcome: every unit of the
// winner held by any account redeems for RedemptionCoins, every other
// holding redeems for zero, and all outstanding tokens are consumed. Valid
// exactly once, at Closed -> Resolved.
func (mm *MarketMaker) Resolve(ctx context.Context, winner domain.OutcomeID) (domain.Market, []domain.Order, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.halted {
		return domain.Market{}, nil, fmt.Errorf("engine: market %s halted: %w", mm.market.ID, domain.ErrLedgerConflict)
	}
	if mm.market.Status != domain.MarketStatusClosed {
		return domain.Market{}, nil, fmt.Errorf("engine: resolve from %s: %w", mm.market.Status, domain.ErrInvalidTransition)
	}
	if _, ok := mm.market.Outcome(winner); !ok {
		return domain.Market{}, nil, domain.ErrUnknownOutcome
	}

	byAccount, accounts := ledger.AllHoldings(mm.log.IterateFrom(0))
	now := mm.cfg.Now()

	var settled []domain.Order
	for _, accountID := range accounts {
		h := byAccount[accountID]
		for _, outcome := range mm.market.OutcomeIDs() {
			held := h.Token(outcome)
			if held == 0 {
				continue
			}
			var payout int64
			if outcome == winner {
				payout = held * mm.cfg.RedemptionCoins
			}
			o, err := mm.commit(ctx, domain.Order{
				MarketID:   mm.market.ID,
				AccountID:  accountID,
				Kind:       domain.OrderKindSettlement,
				Outcome:    outcome,
				TokenDelta: -held,
				CoinDelta:  payout,
				Time:       now,
			})
			if err != nil {
				return domain.Market{}, nil, err
			}
			if err := mm.dist.Apply(outcome, -held); err != nil {
				mm.halted = true
				return domain.Market{}, nil, fmt.Errorf("engine: apply settlement: %w", err)
			}
			settled = append(settled, o)
		}
	}

	w := winner
	mm.market.Status = domain.MarketStatusResolved
	mm.market.WinningOutcome = &w
	mm.market.UpdatedAt = now
	mm.logger.Info("market resolved",
		slog.Int("winning_outcome", int(winner)),
		slog.Int("settlements", len(settled)),
	)
	return mm.market, settled, nil
}

// commit appends to the ledger, converting an ordering conflict into a
// market halt. Caller holds mm.mu.
func (mm *MarketMaker) commit(ctx context.Context, o domain.Order) (domain.Order, error) {
	committed, err := mm.log.Append(ctx, o)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerConflict) {
			mm.halted = true
			mm.logger.Error("ledger conflict, halting market", slog.String("error", err.Error()))
		}
		return domain.Order{}, err
	}
	return committed, nil
}

// CheckConsistency replays the ledger and compares the result with the live
// distribution. A mismatch means the central invariant is broken; callers
// must treat it as data corruption, not a recoverable condition.
func (mm *MarketMaker) CheckConsistency() error {
	mm.mu.Lock()
	live := mm.dist.Snapshot()
	outcomes := mm.market.OutcomeIDs()
	mm.mu.Unlock()

	replayed, err := ledger.Replay(mm.log.IterateFrom(0), outcomes)
	if err != nil {
		return fmt.Errorf("engine: consistency replay: %w", err)
	}
	if !replayed.Equal(live) {
		return fmt.Errorf("engine: market %s live distribution diverged from ledger replay", mm.market.ID)
	}
	return nil
}
