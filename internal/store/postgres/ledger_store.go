package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketforge/mmaker/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Rows are never
// updated or deleted; the (market_id, id) primary key turns a duplicate
// append into a conflict instead of a silent overwrite.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append inserts one ledger entry.
func (s *LedgerStore) Append(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO ledger_orders (
			market_id, id, account_id, kind, outcome,
			token_delta, coin_delta, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		o.MarketID, int64(o.ID), o.AccountID, string(o.Kind), o.Outcome,
		o.TokenDelta, o.CoinDelta, o.Time,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: append order %d for market %s: %w",
				o.ID, o.MarketID, domain.ErrLedgerConflict)
		}
		return fmt.Errorf("postgres: append order %d for market %s: %w", o.ID, o.MarketID, err)
	}
	return nil
}

const orderCols = `market_id, id, account_id, kind, outcome,
	token_delta, coin_delta, ts`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var id int64
	var kind string
	err := row.Scan(
		&o.MarketID, &id, &o.AccountID, &kind, &o.Outcome,
		&o.TokenDelta, &o.CoinDelta, &o.Time,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.ID = domain.OrderID(id)
	o.Kind = domain.OrderKind(kind)
	return o, nil
}

// ListFrom returns up to limit entries for marketID with ID > from, in
// ascending ID order.
func (s *LedgerStore) ListFrom(ctx context.Context, marketID string, from domain.OrderID, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM ledger_orders
		WHERE market_id = $1 AND id > $2
		ORDER BY id ASC`
	args := []any{marketID, int64(from)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

// LastID returns the highest order ID recorded for marketID, zero when the
// ledger is empty.
func (s *LedgerStore) LastID(ctx context.Context, marketID string) (domain.OrderID, error) {
	var last int64
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(id), 0) FROM ledger_orders WHERE market_id = $1",
		marketID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("postgres: last order id for market %s: %w", marketID, err)
	}
	return domain.OrderID(last), nil
}
