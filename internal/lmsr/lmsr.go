// Package lmsr implements the logarithmic market scoring rule used to price
// outcome tokens: cost(b, q) = b * ln(sum_i exp(q_i / b)), with prices given
// by its gradient (a softmax over q/b).
package lmsr

import (
	"math"

	"github.com/marketforge/mmaker/internal/domain"
)

// CoinScale converts unscaled cost/price values into integer coin units at
// the API boundary. Internal computation always stays unscaled; flooring
// inside the running computation would compound rounding error across
// trades.
const CoinScale = 1000

// maxExponent bounds |q_i|/b so that exp stays finite even before the
// log-sum-exp shift. float64 overflows past ~709.
const maxExponent = 700.0

// Cost evaluates the scoring-rule cost for liquidity b and quantity vector q
// using the log-sum-exp stabilization: with m = max_i(q_i/b),
// cost = b * (m + ln(sum_i exp(q_i/b - m))). A direct exponent sum overflows
// for large |q_i|/b.
func Cost(b float64, q []float64) float64 {
	m := math.Inf(-1)
	for _, v := range q {
		if x := v / b; x > m {
			m = x
		}
	}

	var sum float64
	for _, v := range q {
		sum += math.Exp(v/b - m)
	}
	return b * (m + math.Log(sum))
}

// Prices returns the per-outcome prices for liquidity b and quantity vector
// q. Prices sum to 1 and move with the same softmax shift as Cost.
func Prices(b float64, q []float64) []float64 {
	m := math.Inf(-1)
	for _, v := range q {
		if x := v / b; x > m {
			m = x
		}
	}

	exps := make([]float64, len(q))
	var sum float64
	for i, v := range q {
		exps[i] = math.Exp(v/b - m)
		sum += exps[i]
	}

	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// TradeCost returns cost(q') - cost(q) where q' applies delta to the
// quantity at idx. Positive means the trader pays. q is not modified.
func TradeCost(b float64, q []float64, idx int, delta float64) float64 {
	before := Cost(b, q)

	shifted := make([]float64, len(q))
	copy(shifted, q)
	shifted[idx] += delta

	return Cost(b, shifted) - before
}

// ToCoins quantizes an unscaled value to integer coin units. Applied only at
// external boundaries.
func ToCoins(v float64) int64 {
	return int64(math.Floor(v * CoinScale))
}

// CheckRange verifies that the cost function inputs are numerically safe:
// b positive and finite, every quantity finite, and |q_i|/b within the
// exponent budget. Violations surface as domain.ErrNumericRange; with
// realistic trade sizes this never fires.
func CheckRange(b float64, q []float64) error {
	if !(b > 0) || math.IsInf(b, 0) {
		return domain.ErrNumericRange
	}
	for _, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.ErrNumericRange
		}
		if math.Abs(v)/b > maxExponent {
			return domain.ErrNumericRange
		}
	}
	return nil
}
