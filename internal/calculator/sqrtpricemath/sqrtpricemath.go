// Package sqrtpricemath computes token amounts and next prices from liquidity
// and Q64.96 square root prices.
package sqrtpricemath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"ammcore/internal/calculator/fullmath"
	"ammcore/internal/calculator/safecast"
)

const Resolution = 96

var (
	// Q96 is 1.0 in Q64.96.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)

	ErrSqrtPriceZero         = errors.New("sqrtpricemath: sqrt price must be greater than zero")
	ErrLiquidityZero         = errors.New("sqrtpricemath: liquidity must be greater than zero")
	ErrPriceOverflow         = errors.New("sqrtpricemath: next price overflows")
	ErrInsufficientLiquidity = errors.New("sqrtpricemath: output exceeds available liquidity")

	maxUint160 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 160), 1)
)

// GetNextSqrtPriceFromAmount0RoundingUp moves the price by amount of token0.
// The result is rounded up so the price moves no further than the amount allows.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, Resolution)

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
	if add {
		if !overflow {
			denominator, overflow := new(uint256.Int).AddOverflow(numerator1, product)
			if !overflow {
				return fullmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
			}
		}
		denominator, overflow := new(uint256.Int).AddOverflow(new(uint256.Int).Div(numerator1, sqrtPX96), amount)
		if overflow {
			return nil, ErrPriceOverflow
		}
		return fullmath.DivRoundingUp(numerator1, denominator)
	}

	if overflow || !numerator1.Gt(product) {
		return nil, ErrInsufficientLiquidity
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	next, err := fullmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if err != nil {
		return nil, err
	}
	if _, err := safecast.ToUint160(next); err != nil {
		return nil, ErrPriceOverflow
	}
	return next, nil
}

// GetNextSqrtPriceFromAmount1RoundingDown moves the price by amount of token1.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		var quotient *uint256.Int
		if !amount.Gt(maxUint160) {
			quotient = new(uint256.Int).Div(new(uint256.Int).Lsh(amount, Resolution), liquidity)
		} else {
			var err error
			if quotient, err = fullmath.MulDiv(amount, Q96, liquidity); err != nil {
				return nil, err
			}
		}
		next, overflow := new(uint256.Int).AddOverflow(sqrtPX96, quotient)
		if overflow || next.Gt(maxUint160) {
			return nil, ErrPriceOverflow
		}
		return next, nil
	}

	var (
		quotient *uint256.Int
		err      error
	)
	if !amount.Gt(maxUint160) {
		quotient, err = fullmath.DivRoundingUp(new(uint256.Int).Lsh(amount, Resolution), liquidity)
	} else {
		quotient, err = fullmath.MulDivRoundingUp(amount, Q96, liquidity)
	}
	if err != nil {
		return nil, err
	}
	if !sqrtPX96.Gt(quotient) {
		return nil, ErrInsufficientLiquidity
	}
	return new(uint256.Int).Sub(sqrtPX96, quotient), nil
}

// GetNextSqrtPriceFromInput returns the price after adding amountIn of the input token.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after removing amountOut of the output token.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta returns liquidity / sqrt(lower) - liquidity / sqrt(upper).
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, Resolution)
	numerator2 := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		inner, err := fullmath.MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return fullmath.DivRoundingUp(inner, sqrtRatioAX96)
	}
	inner, err := fullmath.MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return inner.Div(inner, sqrtRatioAX96), nil
}

// GetAmount1Delta returns liquidity * (sqrt(upper) - sqrt(lower)).
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fullmath.MulDivRoundingUp(liquidity, diff, Q96)
	}
	return fullmath.MulDiv(liquidity, diff, Q96)
}

// GetAmount0DeltaSigned returns the signed token0 amount for a signed
// liquidity change. Added liquidity rounds up, removed liquidity rounds down,
// so the pool never pays out more than it received.
func GetAmount0DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	return signedDelta(sqrtRatioAX96, sqrtRatioBX96, liquidity, GetAmount0Delta)
}

// GetAmount1DeltaSigned is the token1 counterpart of GetAmount0DeltaSigned.
func GetAmount1DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	return signedDelta(sqrtRatioAX96, sqrtRatioBX96, liquidity, GetAmount1Delta)
}

type deltaFunc func(a, b, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error)

func signedDelta(a, b *uint256.Int, liquidity *big.Int, fn deltaFunc) (*big.Int, error) {
	magnitude, err := safecast.ToUint256(new(big.Int).Abs(liquidity))
	if err != nil {
		return nil, err
	}
	if _, err := safecast.ToUint128(magnitude); err != nil {
		return nil, err
	}
	amount, err := fn(a, b, magnitude, liquidity.Sign() >= 0)
	if err != nil {
		return nil, err
	}
	signed, err := safecast.ToInt256(amount)
	if err != nil {
		return nil, err
	}
	if liquidity.Sign() < 0 {
		signed.Neg(signed)
	}
	return signed, nil
}
