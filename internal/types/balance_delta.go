package types

import (
	"fmt"
	"math/big"

	"ammcore/internal/calculator/safecast"
)

// BalanceDelta is a pair of signed int128 token amounts. A positive amount
// is owed by the caller; a negative amount is owed to the caller.
type BalanceDelta struct {
	Amount0 *big.Int `json:"amount0"`
	Amount1 *big.Int `json:"amount1"`
}

// NewBalanceDelta range-checks both amounts against int128.
func NewBalanceDelta(amount0, amount1 *big.Int) (BalanceDelta, error) {
	if _, err := safecast.ToInt128(amount0); err != nil {
		return BalanceDelta{}, fmt.Errorf("amount0: %w", err)
	}
	if _, err := safecast.ToInt128(amount1); err != nil {
		return BalanceDelta{}, fmt.Errorf("amount1: %w", err)
	}
	return BalanceDelta{Amount0: new(big.Int).Set(amount0), Amount1: new(big.Int).Set(amount1)}, nil
}

// Sub returns d - other.
func (d BalanceDelta) Sub(other BalanceDelta) (BalanceDelta, error) {
	return NewBalanceDelta(new(big.Int).Sub(d.Amount0, other.Amount0), new(big.Int).Sub(d.Amount1, other.Amount1))
}

func (d BalanceDelta) IsZero() bool {
	return d.Amount0.Sign() == 0 && d.Amount1.Sign() == 0
}

func (d BalanceDelta) String() string {
	return fmt.Sprintf("(%s, %s)", d.Amount0, d.Amount1)
}
