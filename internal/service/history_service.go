package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketforge/mmaker/internal/domain"
	"github.com/marketforge/mmaker/internal/engine"
	"github.com/marketforge/mmaker/internal/ledger"
)

// HistoryService answers read-only queries derived from market ledgers:
// account holdings, order history, and price series. Everything here is a
// projection over a ledger cursor, so queries see a consistent snapshot and
// never block the writer.
type HistoryService struct {
	registry *engine.Registry
	logger   *slog.Logger
}

// NewHistoryService creates a HistoryService over the given registry.
func NewHistoryService(registry *engine.Registry, logger *slog.Logger) *HistoryService {
	return &HistoryService{registry: registry, logger: logger}
}

// Holdings folds one account's ledger entries into its current balance.
func (s *HistoryService) Holdings(ctx context.Context, marketID, accountID string) (*domain.Holdings, error) {
	mm, err := s.registry.Get(marketID)
	if err != nil {
		return nil, fmt.Errorf("history_service: holdings market %s: %w", marketID, err)
	}
	return ledger.Holdings(mm.Ledger().IterateFrom(0), accountID), nil
}

// Orders returns ledger entries for a market with ID >= from, up to limit.
// An accountID filter narrows the result to one account's entries.
func (s *HistoryService) Orders(ctx context.Context, marketID string, from domain.OrderID, limit int, accountID string) ([]domain.Order, error) {
	mm, err := s.registry.Get(marketID)
	if err != nil {
		return nil, fmt.Errorf("history_service: orders market %s: %w", marketID, err)
	}

	cur := mm.Ledger().IterateFrom(from)
	orders := make([]domain.Order, 0, cur.Remaining())
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		if accountID != "" && o.AccountID != accountID {
			continue
		}
		orders = append(orders, o)
		if limit > 0 && len(orders) == limit {
			break
		}
	}
	return orders, nil
}

// PriceSeries replays a market's ledger into the sequence of price vectors
// after each trade, starting with the initial uniform point.
func (s *HistoryService) PriceSeries(ctx context.Context, marketID string) ([]ledger.PricePoint, error) {
	mm, err := s.registry.Get(marketID)
	if err != nil {
		return nil, fmt.Errorf("history_service: price series market %s: %w", marketID, err)
	}

	it := ledger.PriceSeries(mm.Ledger().IterateFrom(0), mm.Market())
	var series []ledger.PricePoint
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		series = append(series, p)
	}
	return series, nil
}
