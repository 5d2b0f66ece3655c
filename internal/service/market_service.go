// Package service wires the pricing engine, stores, caches, and bus into the
// operations exposed over the API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/engine"
	"github.com/marketforge/mmaker/internal/ledger"
)

// MarketService owns the market lifecycle: creation, status transitions,
// resolution, and rebuilding the live engines from the durable ledger at
// startup.
type MarketService struct {
	markets   domain.MarketStore
	ledgers   domain.LedgerStore
	registry  *engine.Registry
	archiver  domain.LedgerArchiver
	cache     domain.PriceCache
	bus       domain.SignalBus
	engineCfg engine.Config
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. archiver may be nil when no blob
// store is configured; resolution then skips the ledger export.
func NewMarketService(
	markets domain.MarketStore,
	ledgers domain.LedgerStore,
	registry *engine.Registry,
	archiver domain.LedgerArchiver,
	cache domain.PriceCache,
	bus domain.SignalBus,
	engineCfg engine.Config,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		ledgers:   ledgers,
		registry:  registry,
		archiver:  archiver,
		cache:     cache,
		bus:       bus,
		engineCfg: engineCfg,
		logger:    logger,
	}
}

// CreateMarketParams are the caller-supplied fields of a new market.
type CreateMarketParams struct {
	Title       string
	Organizer   string
	ShortDesc   string
	Description string
	LiquidityB  float64
	Outcomes    []string
	OpenTime    *time.Time
	CloseTime   *time.Time
}

// CreateMarket validates the parameters, persists the market in Upcoming
// status, and registers a fresh engine for it.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	if strings.TrimSpace(p.Title) == "" {
		return domain.Market{}, fmt.Errorf("market_service: title is required: %w", domain.ErrInvalidOrder)
	}
	if len(p.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("market_service: at least two outcomes required: %w", domain.ErrInvalidOrder)
	}
	if p.LiquidityB <= 0 {
		return domain.Market{}, fmt.Errorf("market_service: liquidity must be positive: %w", domain.ErrNumericRange)
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:          "mkt_" + uuid.NewString(),
		Title:       p.Title,
		Organizer:   p.Organizer,
		ShortDesc:   p.ShortDesc,
		Description: p.Description,
		LiquidityB:  p.LiquidityB,
		Status:      domain.MarketStatusUpcoming,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.OpenTime != nil {
		m.OpenTime = *p.OpenTime
	}
	if p.CloseTime != nil {
		m.CloseTime = *p.CloseTime
	}
	for i, name := range p.Outcomes {
		m.Outcomes = append(m.Outcomes, domain.Outcome{
			ID:   domain.OutcomeID(i + 1),
			Name: name,
		})
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}
	if err := s.register(ctx, m); err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.Int("outcomes", len(m.Outcomes)),
	)
	return m, nil
}

// register builds the ledger and engine for a market and adds it to the
// registry.
func (s *MarketService) register(ctx context.Context, m domain.Market) error {
	log := ledger.New(m.ID, s.ledgers)
	if err := log.Rehydrate(ctx); err != nil {
		return fmt.Errorf("market_service: rehydrate ledger %s: %w", m.ID, err)
	}
	mm, err := engine.New(m, log, s.engineCfg, s.logger)
	if err != nil {
		return fmt.Errorf("market_service: build engine %s: %w", m.ID, err)
	}
	if err := s.registry.Add(mm); err != nil {
		return fmt.Errorf("market_service: register engine %s: %w", m.ID, err)
	}
	return nil
}

// Restore rebuilds every persisted market's engine from its durable ledger.
// Called once at startup, before the server accepts traffic.
func (s *MarketService) Restore(ctx context.Context) (int, error) {
	const pageSize = 200
	restored := 0
	for offset := 0; ; offset += pageSize {
		markets, err := s.markets.List(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return restored, fmt.Errorf("market_service: restore list: %w", err)
		}
		if len(markets) == 0 {
			return restored, nil
		}
		for _, m := range markets {
			if err := s.register(ctx, m); err != nil {
				return restored, err
			}
			restored++
		}
	}
}

// GetMarket returns a market's current metadata from its live engine, or the
// store when no engine is registered.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if mm, err := s.registry.Get(id); err == nil {
		return mm.Market(), nil
	}
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets ordered by creation time, newest first.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// OpenMarket transitions a market Upcoming -> Open.
func (s *MarketService) OpenMarket(ctx context.Context, id string) (domain.Market, error) {
	mm, err := s.registry.Get(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: open market %s: %w", id, err)
	}
	m, err := mm.Open(ctx)
	if err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist open %s: %w", id, err)
	}
	s.publishStatus(ctx, m)
	return m, nil
}

// CloseMarket transitions a market Open -> Closed.
func (s *MarketService) CloseMarket(ctx context.Context, id string) (domain.Market, error) {
	mm, err := s.registry.Get(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: close market %s: %w", id, err)
	}
	m, err := mm.Close(ctx)
	if err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist close %s: %w", id, err)
	}
	s.publishStatus(ctx, m)
	return m, nil
}

// ResolveMarket settles a closed market to the winning outcome, persists the
// final state, exports the full ledger to the archive, and drops the cached
// price vector. Archive failures are logged, not returned: the market is
// resolved the moment the settlements are in the ledger.
func (s *MarketService) ResolveMarket(ctx context.Context, id string, winner domain.OutcomeID) (domain.Market, error) {
	mm, err := s.registry.Get(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve market %s: %w", id, err)
	}

	m, settlements, err := mm.Resolve(ctx, winner)
	if err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist resolve %s: %w", id, err)
	}

	if cacheErr := s.cache.Invalidate(ctx, id); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: invalidate prices failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	s.publishStatus(ctx, m)

	if s.archiver != nil {
		if path, archErr := s.archiveLedger(ctx, m, mm); archErr != nil {
			s.logger.ErrorContext(ctx, "market_service: archive ledger failed",
				slog.String("market_id", id),
				slog.String("error", archErr.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "market_service: ledger archived",
				slog.String("market_id", id),
				slog.String("path", path),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", id),
		slog.Int("winning_outcome", int(winner)),
		slog.Int("settlements", len(settlements)),
	)
	return m, nil
}

func (s *MarketService) archiveLedger(ctx context.Context, m domain.Market, mm *engine.MarketMaker) (string, error) {
	cur := mm.Ledger().IterateFrom(0)
	orders := make([]domain.Order, 0, cur.Remaining())
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		orders = append(orders, o)
	}
	return s.archiver.ArchiveLedger(ctx, m, orders)
}

func (s *MarketService) publishStatus(ctx context.Context, m domain.Market) {
	evt, _ := json.Marshal(map[string]any{
		"event":     "market_status",
		"market_id": m.ID,
		"status":    string(m.Status),
		"timestamp": m.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "markets", evt); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish status event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
