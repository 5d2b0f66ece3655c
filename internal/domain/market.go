package domain

import "time"

// MarketStatus represents the lifecycle state of a market. Transitions are
// strictly monotonic: Upcoming -> Open -> Closed -> Resolved.
type MarketStatus string

const (
	MarketStatusUpcoming MarketStatus = "upcoming"
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// rank orders statuses along the state machine. Unknown statuses rank below
// everything so they can never be transitioned into.
func (s MarketStatus) rank() int {
	switch s {
	case MarketStatusUpcoming:
		return 0
	case MarketStatusOpen:
		return 1
	case MarketStatusClosed:
		return 2
	case MarketStatusResolved:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether next is the immediate successor of s.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	return s.rank() >= 0 && next.rank() == s.rank()+1
}

// OutcomeID identifies one outcome within a market.
type OutcomeID int32

// Outcome is one possible result of a market. Immutable once the market is
// created; the order of outcomes in Market.Outcomes is fixed and used for
// deterministic iteration, not for pricing.
type Outcome struct {
	ID          OutcomeID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// Market is a multi-outcome prediction market priced by an LMSR cost
// function. LiquidityB is fixed at creation and controls price sensitivity.
type Market struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Organizer      string       `json:"organizer"`
	ShortDesc      string       `json:"short_desc"`
	Description    string       `json:"description"`
	LiquidityB     float64      `json:"liquidity_b"`
	Outcomes       []Outcome    `json:"outcomes"`
	Status         MarketStatus `json:"status"`
	OpenTime       time.Time    `json:"open_time"`
	CloseTime      time.Time    `json:"close_time"`
	WinningOutcome *OutcomeID   `json:"winning_outcome,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Outcome returns the outcome with the given ID, if it belongs to the market.
func (m Market) Outcome(id OutcomeID) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// OutcomeIDs returns the market's outcome IDs in their fixed order.
func (m Market) OutcomeIDs() []OutcomeID {
	ids := make([]OutcomeID, len(m.Outcomes))
	for i, o := range m.Outcomes {
		ids[i] = o.ID
	}
	return ids
}
