package types

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Currency identifies a token by contract address. The zero address is the
// native asset of the execution environment.
type Currency common.Address

// Native is the native asset sentinel.
var Native = Currency{}

func CurrencyFromHex(s string) Currency {
	return Currency(common.HexToAddress(s))
}

func (c Currency) Address() common.Address { return common.Address(c) }

func (c Currency) IsNative() bool { return c == Native }

// Less orders currencies by address, the canonical order of a pool key.
func (c Currency) Less(other Currency) bool {
	return bytes.Compare(c[:], other[:]) < 0
}

func (c Currency) Hex() string { return common.Address(c).Hex() }

func (c Currency) String() string { return c.Hex() }

func (c Currency) MarshalText() ([]byte, error) {
	return common.Address(c).MarshalText()
}

func (c *Currency) UnmarshalText(input []byte) error {
	return (*common.Address)(c).UnmarshalText(input)
}
