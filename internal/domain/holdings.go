package domain

// Holdings is one account's derived balance in one market: coins plus tokens
// per outcome. It is never stored; it is always recomputed by folding the
// account's ledger entries.
type Holdings struct {
	AccountID string              `json:"account_id"`
	Coins     int64               `json:"coins"`
	Tokens    map[OutcomeID]int64 `json:"tokens"`
	Seeded    bool                `json:"seeded"`
}

// NewHoldings returns empty holdings for an account.
func NewHoldings(accountID string) *Holdings {
	return &Holdings{
		AccountID: accountID,
		Tokens:    make(map[OutcomeID]int64),
	}
}

// Fold applies one ledger entry belonging to this account.
func (h *Holdings) Fold(o Order) {
	switch o.Kind {
	case OrderKindSeed:
		h.Coins += o.CoinDelta
		h.Seeded = true
	case OrderKindTrade, OrderKindSettlement:
		h.Coins += o.CoinDelta
		h.Tokens[o.Outcome] += o.TokenDelta
	}
}

// Token returns the token balance for one outcome.
func (h *Holdings) Token(id OutcomeID) int64 {
	return h.Tokens[id]
}
