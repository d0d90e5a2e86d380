// Package fees decodes the packed swap fee and protocol fee values.
package fees

import (
	"errors"
	"fmt"
)

var ErrFeeTooLarge = errors.New("fees: swap fee too large")

// OneHundredPercent is the swap fee denominator, in hundredths of a bip.
const OneHundredPercent uint32 = 1_000_000

// SwapFee is a 24-bit fee field: the top bit marks a dynamic fee and the low
// 20 bits hold the static fee in hundredths of a bip.
type SwapFee uint32

const (
	DynamicFeeFlag SwapFee = 0x800000
	StaticFeeMask  SwapFee = 0x0FFFFF
)

func (f SwapFee) IsDynamic() bool { return f&DynamicFeeFlag != 0 }

func (f SwapFee) Static() uint32 { return uint32(f & StaticFeeMask) }

// IsStaticFeeTooLarge reports whether the static part reaches limit.
func (f SwapFee) IsStaticFeeTooLarge(limit uint32) bool { return f.Static() >= limit }

// ValidateSwapFee rejects static fees of 100% or more.
func ValidateSwapFee(fee uint32) error {
	if SwapFee(fee).IsStaticFeeTooLarge(OneHundredPercent) {
		return fmt.Errorf("%w: %d", ErrFeeTooLarge, fee)
	}
	return nil
}

// MinProtocolFeeDenominator caps the protocol share of a swap fee at 25%.
const MinProtocolFeeDenominator = 4

// ProtocolFee packs one 8-bit denominator per swap direction: the low byte
// applies to zeroForOne swaps, the high byte to oneForZero swaps. Zero
// disables the fee for that direction.
type ProtocolFee uint16

func NewProtocolFee(zeroForOne, oneForZero uint8) ProtocolFee {
	return ProtocolFee(uint16(oneForZero)<<8 | uint16(zeroForOne))
}

func (p ProtocolFee) ZeroForOne() uint8 { return uint8(p & 0xff) }

func (p ProtocolFee) OneForZero() uint8 { return uint8(p >> 8) }

// ForDirection returns the denominator used by a swap in the given direction.
func (p ProtocolFee) ForDirection(zeroForOne bool) uint8 {
	if zeroForOne {
		return p.ZeroForOne()
	}
	return p.OneForZero()
}

// Valid reports whether both denominators are 0 or at least 4.
func (p ProtocolFee) Valid() bool {
	return validDenominator(p.ZeroForOne()) && validDenominator(p.OneForZero())
}

func validDenominator(d uint8) bool {
	return d == 0 || d >= MinProtocolFeeDenominator
}
