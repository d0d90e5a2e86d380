package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/calculator/liquiditymath"
	"ammcore/internal/calculator/sqrtpricemath"
	"ammcore/internal/calculator/tickmath"
	"ammcore/internal/position"
	"ammcore/internal/tick"
	"ammcore/internal/types"
)

type ModifyLiquidityParams struct {
	Owner          common.Address
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	TickSpacing    int32
}

// ModifyLiquidityResult holds the net amount owed by the caller (token
// amounts minus accrued fees) and the fees that were netted into it.
type ModifyLiquidityResult struct {
	Delta       types.BalanceDelta
	FeesAccrued types.BalanceDelta
}

// ModifyLiquidity adds or removes liquidity for a position and collects the
// fees it accrued. On error the pool may be partially updated; callers work
// on a Clone.
func (s *State) ModifyLiquidity(p ModifyLiquidityParams) (ModifyLiquidityResult, error) {
	if err := s.checkInitialized(); err != nil {
		return ModifyLiquidityResult{}, err
	}
	if err := checkTicks(p.TickLower, p.TickUpper, p.TickSpacing); err != nil {
		return ModifyLiquidityResult{}, err
	}

	delta := p.LiquidityDelta
	if delta == nil {
		delta = new(big.Int)
	}
	current := s.Positions.Get(p.Owner, p.TickLower, p.TickUpper)
	if delta.Sign() == 0 && current.Liquidity.IsZero() {
		return ModifyLiquidityResult{}, position.ErrCannotUpdateEmptyPosition
	}
	if _, err := liquiditymath.AddDelta(current.Liquidity, delta); err != nil {
		return ModifyLiquidityResult{}, err
	}

	var flippedLower, flippedUpper bool
	if delta.Sign() != 0 {
		maxLiquidity, err := tick.SpacingToMaxLiquidityPerTick(p.TickSpacing)
		if err != nil {
			return ModifyLiquidityResult{}, err
		}
		flippedLower, err = s.Ticks.Update(p.TickLower, s.Slot0.Tick, delta, s.FeeGrowthGlobal0X128, s.FeeGrowthGlobal1X128, false, maxLiquidity)
		if err != nil {
			return ModifyLiquidityResult{}, err
		}
		flippedUpper, err = s.Ticks.Update(p.TickUpper, s.Slot0.Tick, delta, s.FeeGrowthGlobal0X128, s.FeeGrowthGlobal1X128, true, maxLiquidity)
		if err != nil {
			return ModifyLiquidityResult{}, err
		}
		if flippedLower {
			if err := s.Bitmap.FlipTick(p.TickLower, p.TickSpacing); err != nil {
				return ModifyLiquidityResult{}, err
			}
		}
		if flippedUpper {
			if err := s.Bitmap.FlipTick(p.TickUpper, p.TickSpacing); err != nil {
				return ModifyLiquidityResult{}, err
			}
		}
	}

	inside0, inside1 := s.Ticks.FeeGrowthInside(p.TickLower, p.TickUpper, s.Slot0.Tick, s.FeeGrowthGlobal0X128, s.FeeGrowthGlobal1X128)
	feesOwed0, feesOwed1, err := s.Positions.Update(p.Owner, p.TickLower, p.TickUpper, delta, inside0, inside1)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}

	// ticks are only cleared once the position has collected its fees
	if delta.Sign() < 0 {
		if flippedLower {
			s.Ticks.Clear(p.TickLower)
		}
		if flippedUpper {
			s.Ticks.Clear(p.TickUpper)
		}
	}

	amount0, amount1, err := s.liquidityAmounts(p.TickLower, p.TickUpper, delta)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}

	feeDelta, err := types.NewBalanceDelta(feesOwed0.ToBig(), feesOwed1.ToBig())
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	principal, err := types.NewBalanceDelta(amount0, amount1)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	net, err := principal.Sub(feeDelta)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	return ModifyLiquidityResult{Delta: net, FeesAccrued: feeDelta}, nil
}

// liquidityAmounts returns the token amounts backing delta over the range
// and updates active liquidity when the range contains the current tick.
func (s *State) liquidityAmounts(tickLower, tickUpper int32, delta *big.Int) (*big.Int, *big.Int, error) {
	amount0, amount1 := new(big.Int), new(big.Int)
	if delta.Sign() == 0 {
		return amount0, amount1, nil
	}

	sqrtLower, err := tickmath.GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := tickmath.GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case s.Slot0.Tick < tickLower:
		// range is above the price, only token0 is needed
		amount0, err = sqrtpricemath.GetAmount0DeltaSigned(sqrtLower, sqrtUpper, delta)
	case s.Slot0.Tick < tickUpper:
		amount0, err = sqrtpricemath.GetAmount0DeltaSigned(s.Slot0.SqrtPriceX96, sqrtUpper, delta)
		if err != nil {
			return nil, nil, err
		}
		amount1, err = sqrtpricemath.GetAmount1DeltaSigned(sqrtLower, s.Slot0.SqrtPriceX96, delta)
		if err != nil {
			return nil, nil, err
		}
		var liquidity *uint256.Int
		liquidity, err = liquiditymath.AddDelta(s.Liquidity, delta)
		if err == nil {
			s.Liquidity = liquidity
		}
	default:
		amount1, err = sqrtpricemath.GetAmount1DeltaSigned(sqrtLower, sqrtUpper, delta)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
