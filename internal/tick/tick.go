// Package tick keeps per-tick liquidity accounting for a pool and a
// word-packed bitmap of initialized ticks.
package tick

import (
	"errors"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"ammcore/internal/calculator/liquiditymath"
	"ammcore/internal/calculator/safecast"
	"ammcore/internal/calculator/tickmath"
)

var (
	ErrLiquidityTooLarge = errors.New("tick: liquidity gross exceeds max per tick")
	ErrTickMisaligned    = errors.New("tick: tick is not a multiple of tick spacing")
	ErrInvalidSpacing    = errors.New("tick: tick spacing must be positive")
)

// Info is the state kept for one initialized tick.
type Info struct {
	LiquidityGross        *uint256.Int `json:"liquidity_gross"`
	LiquidityNet          *big.Int     `json:"liquidity_net"`
	FeeGrowthOutside0X128 *uint256.Int `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 *uint256.Int `json:"fee_growth_outside1_x128"`
}

func emptyInfo() *Info {
	return &Info{
		LiquidityGross:        new(uint256.Int),
		LiquidityNet:          new(big.Int),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

func (i *Info) clone() *Info {
	return &Info{
		LiquidityGross:        new(uint256.Int).Set(i.LiquidityGross),
		LiquidityNet:          new(big.Int).Set(i.LiquidityNet),
		FeeGrowthOutside0X128: new(uint256.Int).Set(i.FeeGrowthOutside0X128),
		FeeGrowthOutside1X128: new(uint256.Int).Set(i.FeeGrowthOutside1X128),
	}
}

// Store is a sparse map of tick index to Info. Absent ticks read as zero.
type Store map[int32]*Info

// Ticks lists the stored ticks in ascending order.
func (s Store) Ticks() []int32 {
	out := make([]int32, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Get returns a copy of the tick's state.
func (s Store) Get(tick int32) Info {
	if info, ok := s[tick]; ok {
		return *info.clone()
	}
	return *emptyInfo()
}

// Update applies liquidityDelta to the tick and reports whether the tick
// flipped between initialized and uninitialized. A tick counts as
// initialized while its gross liquidity is non-zero.
func (s Store) Update(tick, tickCurrent int32, liquidityDelta *big.Int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int, upper bool, maxLiquidity *uint256.Int) (bool, error) {
	info, exists := s[tick]
	if !exists {
		info = emptyInfo()
	}

	grossBefore := info.LiquidityGross
	grossAfter, err := liquiditymath.AddDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Gt(maxLiquidity) {
		return false, ErrLiquidityTooLarge
	}

	net := new(big.Int)
	if upper {
		net.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		net.Add(info.LiquidityNet, liquidityDelta)
	}
	if _, err := safecast.ToInt128(net); err != nil {
		return false, err
	}

	flipped := grossAfter.IsZero() != grossBefore.IsZero()

	updated := info.clone()
	if grossBefore.IsZero() && tick <= tickCurrent {
		// growth below the current tick is assumed to have happened outside
		updated.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
		updated.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
	}
	updated.LiquidityGross = grossAfter
	updated.LiquidityNet = net

	if !exists && grossAfter.IsZero() {
		return flipped, nil
	}
	s[tick] = updated
	return flipped, nil
}

// Clear removes all state for the tick.
func (s Store) Clear(tick int32) {
	delete(s, tick)
}

// Cross flips the fee growth outside snapshots when price moves across tick
// and returns the tick's net liquidity.
func (s Store) Cross(tick int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) *big.Int {
	info, ok := s[tick]
	if !ok {
		return new(big.Int)
	}
	info.FeeGrowthOutside0X128 = new(uint256.Int).Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128 = new(uint256.Int).Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return new(big.Int).Set(info.LiquidityNet)
}

// FeeGrowthInside returns fee growth per unit of liquidity accrued inside
// [tickLower, tickUpper). All arithmetic wraps modulo 2^256.
func (s Store) FeeGrowthInside(tickLower, tickUpper, tickCurrent int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) (*uint256.Int, *uint256.Int) {
	lower := s.Get(tickLower)
	upper := s.Get(tickUpper)

	var below0, below1 *uint256.Int
	if tickCurrent >= tickLower {
		below0, below1 = lower.FeeGrowthOutside0X128, lower.FeeGrowthOutside1X128
	} else {
		below0 = new(uint256.Int).Sub(feeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
		below1 = new(uint256.Int).Sub(feeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
	}

	var above0, above1 *uint256.Int
	if tickCurrent < tickUpper {
		above0, above1 = upper.FeeGrowthOutside0X128, upper.FeeGrowthOutside1X128
	} else {
		above0 = new(uint256.Int).Sub(feeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
		above1 = new(uint256.Int).Sub(feeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
	}

	inside0 := new(uint256.Int).Sub(feeGrowthGlobal0X128, below0)
	inside0.Sub(inside0, above0)
	inside1 := new(uint256.Int).Sub(feeGrowthGlobal1X128, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}

// Clone deep-copies the store.
func (s Store) Clone() Store {
	out := make(Store, len(s))
	for k, v := range s {
		out[k] = v.clone()
	}
	return out
}

var maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// SpacingToMaxLiquidityPerTick divides the uint128 liquidity range evenly
// across every usable tick for the spacing.
func SpacingToMaxLiquidityPerTick(tickSpacing int32) (*uint256.Int, error) {
	if tickSpacing <= 0 {
		return nil, ErrInvalidSpacing
	}
	minTick := (tickmath.MinTick / tickSpacing) * tickSpacing
	maxTick := (tickmath.MaxTick / tickSpacing) * tickSpacing
	numTicks := uint64((maxTick-minTick)/tickSpacing) + 1
	return new(uint256.Int).Div(maxUint128, uint256.NewInt(numTicks)), nil
}
