// Package fullmath implements multiply-then-divide with a 512-bit intermediate product.
package fullmath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrDivisionByZero = errors.New("fullmath: division by zero")
	ErrOverflow       = errors.New("fullmath: result overflows uint256")

	one = uint256.NewInt(1)
)

// MulDiv returns floor(a*b/denominator). The product is computed at full
// precision, so only a quotient that does not fit 256 bits is rejected.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	result, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		return result, nil
	}
	if result.Eq(maxUint256) {
		return nil, ErrOverflow
	}
	return result.Add(result, one), nil
}

// DivRoundingUp returns ceil(x/y).
func DivRoundingUp(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient, rem := new(uint256.Int).DivMod(x, y, new(uint256.Int))
	if !rem.IsZero() {
		quotient.Add(quotient, one)
	}
	return quotient, nil
}

var maxUint256 = new(uint256.Int).SetAllOne()
