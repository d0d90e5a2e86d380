package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammcore/internal/fees"
	"ammcore/internal/ledger"
	"ammcore/internal/manager"
	"ammcore/internal/token"
	"ammcore/internal/types"
)

type fakeCaller struct {
	msgs  []ethereum.CallMsg
	block *big.Int
	out   []byte
	err   error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.msgs = append(f.msgs, msg)
	f.block = block
	return f.out, f.err
}

var (
	controllerAddr = common.HexToAddress("0x0000000000000000000000000000000000000f04")
	managerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000f03")
	testKey        = types.PoolKey{
		Currency0:   types.CurrencyFromHex("0x00000000000000000000000000000000000000c0"),
		Currency1:   types.CurrencyFromHex("0x00000000000000000000000000000000000000c1"),
		PoolManager: managerAddr,
		Fee:         3000,
	}
)

func TestFeeControllerCall(t *testing.T) {
	want, err := fees.EncodeProtocolFee(fees.NewProtocolFee(4, 5))
	require.NoError(t, err)
	caller := &fakeCaller{out: want}
	fc := NewFeeController(caller, controllerAddr, big.NewInt(19_000_000), nil)

	out, err := fc.ProtocolFeeForPool(context.Background(), testKey, 42_000)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	require.Len(t, caller.msgs, 1)
	msg := caller.msgs[0]
	require.NotNil(t, msg.To)
	assert.Equal(t, controllerAddr, *msg.To)
	assert.Equal(t, uint64(42_000), msg.Gas)
	packed, err := fees.PackProtocolFeeForPool(testKey)
	require.NoError(t, err)
	assert.Equal(t, packed, msg.Data)
	assert.Equal(t, big.NewInt(19_000_000), caller.block)
}

func TestFeeControllerCallError(t *testing.T) {
	revert := errors.New("execution reverted")
	fc := NewFeeController(&fakeCaller{err: revert}, controllerAddr, nil, nil)
	_, err := fc.ProtocolFeeForPool(context.Background(), testKey, 1)
	assert.ErrorIs(t, err, revert)
}

func TestFeeControllerBehindManager(t *testing.T) {
	reg := token.NewRegistry()
	vault := ledger.NewVault(common.HexToAddress("0xf01"), common.HexToAddress("0xf02"), reg)
	raw, err := fees.EncodeProtocolFee(fees.NewProtocolFee(8, 0))
	require.NoError(t, err)

	cases := []struct {
		name string
		out  []byte
		err  error
		want fees.ProtocolFee
	}{
		{"valid", raw, nil, fees.NewProtocolFee(8, 0)},
		{"reverted", nil, errors.New("execution reverted"), 0},
		{"empty", []byte{}, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := NewFeeController(&fakeCaller{out: tc.out, err: tc.err}, controllerAddr, nil, nil)
			m := manager.New(managerAddr, common.Address{}, vault, manager.WithProtocolFeeController(controllerAddr, fc))
			_, err := m.Initialize(context.Background(), testKey, new(uint256.Int).Lsh(uint256.NewInt(1), 96))
			require.NoError(t, err)
			s0, err := m.Slot0(testKey)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s0.ProtocolFee)
		})
	}
}
