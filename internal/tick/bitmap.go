package tick

import (
	"github.com/holiman/uint256"

	"ammcore/internal/calculator/bitmath"
)

// Bitmap packs one bit per compressed tick (tick / spacing) into 256-bit words.
type Bitmap map[int16]*uint256.Int

func position(compressed int32) (int16, uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

// Word returns a copy of the word at wordPos.
func (b Bitmap) Word(wordPos int16) *uint256.Int {
	if w, ok := b[wordPos]; ok {
		return new(uint256.Int).Set(w)
	}
	return new(uint256.Int)
}

// FlipTick toggles the bit for tick.
func (b Bitmap) FlipTick(tick, tickSpacing int32) error {
	if tickSpacing <= 0 {
		return ErrInvalidSpacing
	}
	if tick%tickSpacing != 0 {
		return ErrTickMisaligned
	}
	wordPos, bitPos := position(tick / tickSpacing)
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	word := b.Word(wordPos)
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b, wordPos)
		return nil
	}
	b[wordPos] = word
	return nil
}

// NextInitializedTickWithinOneWord finds the next initialized tick at or
// below tick (lte) or strictly above it, looking only inside the word that
// contains the starting position. When nothing is set it returns the word
// boundary with initialized=false; callers clamp the result to the tick range.
func (b Bitmap) NextInitializedTickWithinOneWord(tick, tickSpacing int32, lte bool) (int32, bool) {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}

	one := uint256.NewInt(1)
	if lte {
		wordPos, bitPos := position(compressed)
		bit := new(uint256.Int).Lsh(one, uint(bitPos))
		mask := new(uint256.Int).Sub(bit, one)
		mask.Add(mask, bit)
		masked := mask.And(mask, b.Word(wordPos))
		if masked.IsZero() {
			return (compressed - int32(bitPos)) * tickSpacing, false
		}
		msb, _ := bitmath.MostSignificantBit(masked)
		return (compressed - int32(bitPos) + int32(msb)) * tickSpacing, true
	}

	wordPos, bitPos := position(compressed + 1)
	mask := new(uint256.Int).Lsh(one, uint(bitPos))
	mask.Sub(mask, one)
	mask.Not(mask)
	masked := mask.And(mask, b.Word(wordPos))
	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * tickSpacing, false
	}
	lsb, _ := bitmath.LeastSignificantBit(masked)
	return (compressed + 1 + int32(lsb) - int32(bitPos)) * tickSpacing, true
}

// Clone deep-copies the bitmap.
func (b Bitmap) Clone() Bitmap {
	out := make(Bitmap, len(b))
	for k, v := range b {
		out[k] = new(uint256.Int).Set(v)
	}
	return out
}
