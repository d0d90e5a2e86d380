// Package chain reaches a deployed protocol fee controller over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrNoContractCode = errors.New("chain: no contract code at address")

// Caller is what the fee controller needs from a node.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is a node connection pinned to one chain.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
}

// NewClient dials rpcURL and reads the chain id once.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	ec := ethclient.NewClient(rc)
	id, err := ec.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return &Client{rpc: rc, eth: ec, chainID: id}, nil
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// PinBlock returns the current head. Replays pass it to NewFeeController so
// every controller call reads the same state.
func (c *Client) PinBlock(ctx context.Context) (*big.Int, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block number: %w", err)
	}
	return new(big.Int).SetUint64(n), nil
}

// RequireCode fails with ErrNoContractCode when nothing is deployed at addr.
func (c *Client) RequireCode(ctx context.Context, addr common.Address, block *big.Int) error {
	code, err := c.eth.CodeAt(ctx, addr, block)
	if err != nil {
		return fmt.Errorf("get code %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w %s", ErrNoContractCode, addr.Hex())
	}
	return nil
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
