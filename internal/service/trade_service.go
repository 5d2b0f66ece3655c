package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/engine"
)

// TradeService executes trades and seeds against the live engines and keeps
// the cached price vector and the signal bus current.
type TradeService struct {
	registry *engine.Registry
	cache    domain.PriceCache
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	registry *engine.Registry,
	cache domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		registry: registry,
		cache:    cache,
		bus:      bus,
		logger:   logger,
	}
}

// Seed grants an account its starting balance in a market.
func (s *TradeService) Seed(ctx context.Context, marketID, accountID string) (domain.Order, error) {
	mm, err := s.registry.Get(marketID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trade_service: seed market %s: %w", marketID, err)
	}
	o, err := mm.Seed(ctx, accountID)
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.InfoContext(ctx, "trade_service: account seeded",
		slog.String("market_id", marketID),
		slog.String("account_id", accountID),
		slog.Int64("coins", o.CoinDelta),
	)
	return o, nil
}

// Execute runs one trade through the market's engine and, on success, pushes
// the fresh price vector to the cache and the signal bus. Guard rejections
// pass through untouched so handlers can map them to status codes.
func (s *TradeService) Execute(ctx context.Context, marketID, accountID string, outcome domain.OutcomeID, deltaQty, maxCost int64) (domain.Order, error) {
	mm, err := s.registry.Get(marketID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trade_service: execute market %s: %w", marketID, err)
	}

	o, err := mm.Execute(ctx, accountID, outcome, deltaQty, maxCost)
	if err != nil {
		return domain.Order{}, err
	}

	s.pushPrices(ctx, mm)

	s.logger.InfoContext(ctx, "trade_service: trade executed",
		slog.String("market_id", marketID),
		slog.String("account_id", accountID),
		slog.Uint64("order_id", uint64(o.ID)),
		slog.Int64("token_delta", o.TokenDelta),
		slog.Int64("coin_delta", o.CoinDelta),
	)
	return o, nil
}

// Prices returns the market's current coin-unit price vector, serving from
// the cache when possible and recomputing from the engine on a miss.
func (s *TradeService) Prices(ctx context.Context, marketID string) (map[domain.OutcomeID]int64, time.Time, error) {
	cached, ts, err := s.cache.GetPrices(ctx, marketID)
	if err == nil {
		return cached, ts, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "trade_service: price cache read failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	mm, err := s.registry.Get(marketID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("trade_service: prices market %s: %w", marketID, err)
	}
	prices := s.priceVector(mm)
	now := time.Now().UTC()
	if setErr := s.cache.SetPrices(ctx, marketID, prices, now); setErr != nil {
		s.logger.WarnContext(ctx, "trade_service: price cache write failed",
			slog.String("market_id", marketID),
			slog.String("error", setErr.Error()),
		)
	}
	return prices, now, nil
}

func (s *TradeService) priceVector(mm *engine.MarketMaker) map[domain.OutcomeID]int64 {
	ids := mm.Market().OutcomeIDs()
	coins := mm.Prices()
	prices := make(map[domain.OutcomeID]int64, len(ids))
	for i, id := range ids {
		prices[id] = coins[i]
	}
	return prices
}

// pushPrices refreshes the cache and publishes a price update event. Both
// are best-effort: the trade is already committed.
func (s *TradeService) pushPrices(ctx context.Context, mm *engine.MarketMaker) {
	marketID := mm.Market().ID
	prices := s.priceVector(mm)
	now := time.Now().UTC()

	if err := s.cache.SetPrices(ctx, marketID, prices, now); err != nil {
		s.logger.WarnContext(ctx, "trade_service: price cache update failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"market_id": marketID,
		"prices":    prices,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "prices", evt); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish price event failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
