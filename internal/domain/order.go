package domain

import (
	"fmt"
	"time"
)

// OrderKind discriminates the ledger entry variants. Every switch over
// OrderKind must be exhaustive; there is no default behavior for an unknown
// kind.
type OrderKind string

const (
	// OrderKindSeed grants an account its starting coin balance on first
	// entry into an open market. Contributes nothing to the distribution.
	OrderKindSeed OrderKind = "seed"

	// OrderKindTrade records a signed quantity change for one outcome and
	// the coin amount the trader paid (negative) or received (positive).
	OrderKindTrade OrderKind = "trade"

	// OrderKindSettlement converts an account's outstanding tokens into
	// their redemption value when the market resolves. Emitted once per
	// (account, outcome) holding at the Closed -> Resolved transition.
	OrderKindSettlement OrderKind = "settlement"
)

// OrderID totally orders entries within one market's ledger. IDs are dense
// and strictly increasing, assigned by the ledger at append.
type OrderID uint64

// Order is one immutable ledger entry. TokenDelta and CoinDelta are signed
// and expressed from the account's perspective: a buy has positive
// TokenDelta and negative CoinDelta. CoinDelta is in integer coin units
// (quantity scaled by lmsr.CoinScale).
type Order struct {
	ID         OrderID   `json:"id"`
	MarketID   string    `json:"market_id"`
	AccountID  string    `json:"account_id"`
	Kind       OrderKind `json:"kind"`
	Outcome    OutcomeID `json:"outcome,omitempty"` // zero for Seed
	TokenDelta int64     `json:"token_delta"`
	CoinDelta  int64     `json:"coin_delta"`
	Time       time.Time `json:"time"`
}

// Validate checks the kind-specific shape of an order before it reaches the
// ledger.
func (o Order) Validate() error {
	if o.MarketID == "" || o.AccountID == "" {
		return fmt.Errorf("%w: missing market or account id", ErrInvalidOrder)
	}
	if o.Time.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidOrder)
	}
	switch o.Kind {
	case OrderKindSeed:
		if o.TokenDelta != 0 {
			return fmt.Errorf("%w: seed order must not move tokens", ErrInvalidOrder)
		}
		if o.CoinDelta <= 0 {
			return fmt.Errorf("%w: seed order must grant coins", ErrInvalidOrder)
		}
	case OrderKindTrade:
		if o.TokenDelta == 0 {
			return fmt.Errorf("%w: trade order must move tokens", ErrInvalidOrder)
		}
	case OrderKindSettlement:
		if o.TokenDelta == 0 {
			return fmt.Errorf("%w: settlement order must consume tokens", ErrInvalidOrder)
		}
		if o.CoinDelta < 0 {
			return fmt.Errorf("%w: settlement order cannot charge coins", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOrder, o.Kind)
	}
	return nil
}
