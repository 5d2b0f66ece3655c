package domain

import "errors"

var (
	// ErrPriceSlipped is returned when the cost of a trade at commit time
	// exceeds the caller's stated maximum. The caller may re-read prices and
	// resubmit with a fresh bound.
	ErrPriceSlipped = errors.New("price slipped past acceptable cost")

	// ErrInsufficientBalance is returned when the account's derived coin or
	// token balance cannot cover the trade.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMarketNotOpen is returned when an order is submitted to a market
	// that does not accept that order kind in its current status.
	ErrMarketNotOpen = errors.New("market not open")

	// ErrInvalidTransition is returned on an attempt to move a market's
	// status backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid market status transition")

	// ErrLedgerConflict indicates the ledger rejected an append from its
	// single writer (ID or timestamp regression). That is a serialization bug
	// upstream; the engine halts the market rather than retrying.
	ErrLedgerConflict = errors.New("ledger ordering conflict")

	// ErrNumericRange is returned when cost-function inputs fall outside the
	// numerically safe range. Quantities bounded by realistic trade sizes
	// never trigger it.
	ErrNumericRange = errors.New("cost function input out of numeric range")

	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnknownOutcome  = errors.New("outcome does not belong to market")
	ErrInvalidQuantity = errors.New("invalid token quantity")
	ErrInvalidOrder    = errors.New("invalid order parameters")
)
