package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/fees"
	"ammcore/internal/manager"
	"ammcore/internal/types"
)

var _ manager.FeeController = (*FeeController)(nil)

// FeeController asks a deployed protocol fee controller contract for pool
// fees over eth_call. The manager's gas limit becomes the call's gas cap.
type FeeController struct {
	caller  Caller
	address common.Address
	block   *big.Int
	logger  *zap.Logger
}

// NewFeeController queries the contract at address. A nil block reads the
// latest state.
func NewFeeController(caller Caller, address common.Address, block *big.Int, logger *zap.Logger) *FeeController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeController{caller: caller, address: address, block: block, logger: logger}
}

func (f *FeeController) Address() common.Address { return f.address }

// ProtocolFeeForPool returns the raw return data; the manager validates it.
func (f *FeeController) ProtocolFeeForPool(ctx context.Context, key types.PoolKey, gasLimit uint64) ([]byte, error) {
	data, err := fees.PackProtocolFeeForPool(key)
	if err != nil {
		return nil, err
	}
	to := f.address
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Gas:  gasLimit,
		Data: data,
	}, f.block)
	if err != nil {
		return nil, fmt.Errorf("protocolFeeForPool: %w", err)
	}
	f.logger.Debug("protocol fee controller answered",
		zap.String("controller", f.address.Hex()),
		zap.String("pool_id", key.ID().Hex()),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}
