package types

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey identifies a pool: its currency pair, the manager that owns it and
// its fee configuration (see package fees for the bit layout).
type PoolKey struct {
	Currency0   Currency       `json:"currency0"`
	Currency1   Currency       `json:"currency1"`
	PoolManager common.Address `json:"pool_manager"`
	Fee         uint32         `json:"fee"`
}

var (
	poolKeyArgs     abi.Arguments
	poolKeyArgsOnce sync.Once
	poolKeyArgsErr  error
)

func poolKeyArguments() (abi.Arguments, error) {
	poolKeyArgsOnce.Do(func() {
		addressTy, err := abi.NewType("address", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		feeTy, err := abi.NewType("uint24", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		poolKeyArgs = abi.Arguments{{Type: addressTy}, {Type: addressTy}, {Type: addressTy}, {Type: feeTy}}
	})
	return poolKeyArgs, poolKeyArgsErr
}

// Encode returns the ABI encoding of the key.
func (k PoolKey) Encode() ([]byte, error) {
	args, err := poolKeyArguments()
	if err != nil {
		return nil, fmt.Errorf("pool key abi: %w", err)
	}
	if k.Fee >= 1<<24 {
		return nil, fmt.Errorf("pool key fee %d exceeds uint24", k.Fee)
	}
	return args.Pack(k.Currency0.Address(), k.Currency1.Address(), k.PoolManager, new(big.Int).SetUint64(uint64(k.Fee)))
}

// ID is keccak256 of the ABI encoded key. A key that cannot be encoded
// (fee above uint24) has the zero id, under which no pool is ever stored.
func (k PoolKey) ID() common.Hash {
	encoded, err := k.Encode()
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(encoded)
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s fee=%d manager=%s", k.Currency0.Hex(), k.Currency1.Hex(), k.Fee, k.PoolManager.Hex())
}
