package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/types"
)

var ErrMalformedProtocolFee = errors.New("fees: malformed protocol fee response")

const controllerABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "currency0", "type": "address"},
          {"internalType": "address", "name": "currency1", "type": "address"},
          {"internalType": "address", "name": "poolManager", "type": "address"},
          {"internalType": "uint24", "name": "fee", "type": "uint24"}
        ],
        "internalType": "struct PoolKey",
        "name": "key",
        "type": "tuple"
      }
    ],
    "name": "protocolFeeForPool",
    "outputs": [{"internalType": "uint16", "name": "", "type": "uint16"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const protocolFeeForPool = "protocolFeeForPool"

var (
	controllerABI     abi.ABI
	controllerABIOnce sync.Once
	controllerABIErr  error
)

// ControllerABI returns the parsed protocol fee controller ABI.
func ControllerABI() (abi.ABI, error) {
	controllerABIOnce.Do(func() {
		controllerABI, controllerABIErr = abi.JSON(strings.NewReader(controllerABIJSON))
	})
	return controllerABI, controllerABIErr
}

type poolKeyTuple struct {
	Currency0   common.Address
	Currency1   common.Address
	PoolManager common.Address
	Fee         *big.Int
}

// PackProtocolFeeForPool returns calldata for protocolFeeForPool(key).
func PackProtocolFeeForPool(key types.PoolKey) ([]byte, error) {
	parsed, err := ControllerABI()
	if err != nil {
		return nil, fmt.Errorf("parse controller abi: %w", err)
	}
	return parsed.Pack(protocolFeeForPool, poolKeyTuple{
		Currency0:   key.Currency0.Address(),
		Currency1:   key.Currency1.Address(),
		PoolManager: key.PoolManager,
		Fee:         new(big.Int).SetUint64(uint64(key.Fee)),
	})
}

// EncodeProtocolFee ABI-encodes a protocolFeeForPool return value.
func EncodeProtocolFee(fee ProtocolFee) ([]byte, error) {
	parsed, err := ControllerABI()
	if err != nil {
		return nil, fmt.Errorf("parse controller abi: %w", err)
	}
	return parsed.Methods[protocolFeeForPool].Outputs.Pack(uint16(fee))
}

// DecodeProtocolFee accepts only a single 32-byte word holding a uint16.
// Sub-field validity is checked separately with ProtocolFee.Valid.
func DecodeProtocolFee(raw []byte) (ProtocolFee, error) {
	if len(raw) != 32 {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedProtocolFee, len(raw))
	}
	value := new(big.Int).SetBytes(raw)
	if value.BitLen() > 16 {
		return 0, fmt.Errorf("%w: value exceeds uint16", ErrMalformedProtocolFee)
	}
	parsed, err := ControllerABI()
	if err != nil {
		return 0, fmt.Errorf("parse controller abi: %w", err)
	}
	values, err := parsed.Unpack(protocolFeeForPool, raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedProtocolFee, err)
	}
	fee, ok := values[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected type %T", ErrMalformedProtocolFee, values[0])
	}
	return ProtocolFee(fee), nil
}
