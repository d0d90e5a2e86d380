// Package router runs single pool operations inside their own lock scope
// and settles the resulting deltas against a payer and a recipient.
package router

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/ledger"
	"ammcore/internal/manager"
	"ammcore/internal/pool"
	"ammcore/internal/types"
)

var ErrMissingPayer = errors.New("router: liquidity changes need a payer to own the position")

// Settings names who pays and who receives. Payers of non-native
// currencies must have approved the router.
type Settings struct {
	Payer     common.Address
	Recipient common.Address
	// UseSurplus credits outputs as vault surplus instead of transferring them.
	UseSurplus bool
}

type Router struct {
	address common.Address
	manager *manager.Manager
	tokens  ledger.Tokens
	logger  *zap.Logger
}

func New(address common.Address, m *manager.Manager, tokens ledger.Tokens, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{address: address, manager: m, tokens: tokens, logger: logger}
}

func (r *Router) Address() common.Address { return r.address }

func (r *Router) run(ctx context.Context, key types.PoolKey, st Settings, op func(s *ledger.Session) error) error {
	_, err := r.manager.Vault().Lock(ctx, r.address, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := op(s); err != nil {
			return nil, err
		}
		return nil, r.settle(s, key, st)
	})
	return err
}

func (r *Router) Swap(ctx context.Context, key types.PoolKey, p manager.SwapParams, st Settings) (pool.SwapResult, error) {
	var res pool.SwapResult
	err := r.run(ctx, key, st, func(s *ledger.Session) (err error) {
		res, err = r.manager.Swap(s, key, p)
		return err
	})
	if err != nil {
		return pool.SwapResult{}, err
	}
	return res, nil
}

// ModifyLiquidity changes the payer's position for the range. The change
// runs in a scope nested under the router and opened as the payer, so the
// payer owns the position and settles it. Fees collected by the change go
// to the recipient.
func (r *Router) ModifyLiquidity(ctx context.Context, key types.PoolKey, p manager.ModifyLiquidityParams, st Settings) (pool.ModifyLiquidityResult, error) {
	if st.Payer == (common.Address{}) {
		return pool.ModifyLiquidityResult{}, ErrMissingPayer
	}
	var res pool.ModifyLiquidityResult
	_, err := r.manager.Vault().Lock(ctx, r.address, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		return s.Lock(st.Payer, nil, func(owner *ledger.Session, _ []byte) ([]byte, error) {
			var err error
			if res, err = r.manager.ModifyLiquidity(owner, key, p); err != nil {
				return nil, err
			}
			return nil, r.settle(owner, key, st)
		})
	})
	if err != nil {
		return pool.ModifyLiquidityResult{}, err
	}
	return res, nil
}

func (r *Router) Donate(ctx context.Context, key types.PoolKey, amount0, amount1 *uint256.Int, st Settings) (types.BalanceDelta, error) {
	var delta types.BalanceDelta
	err := r.run(ctx, key, st, func(s *ledger.Session) (err error) {
		delta, err = r.manager.Donate(s, key, amount0, amount1)
		return err
	})
	if err != nil {
		return types.BalanceDelta{}, err
	}
	return delta, nil
}

func (r *Router) settle(s *ledger.Session, key types.PoolKey, st Settings) error {
	for _, c := range []types.Currency{key.Currency0, key.Currency1} {
		d := s.CurrencyDelta(c)
		switch d.Sign() {
		case 1:
			if err := r.pay(s, c, st.Payer, d); err != nil {
				return err
			}
		case -1:
			amount, err := toAmount(new(big.Int).Neg(d))
			if err != nil {
				return err
			}
			if st.UseSurplus {
				err = s.Mint(c, st.Recipient, amount)
			} else {
				err = s.Take(c, st.Recipient, amount)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Router) pay(s *ledger.Session, c types.Currency, payer common.Address, owed *big.Int) error {
	amount, err := toAmount(owed)
	if err != nil {
		return err
	}
	tok, err := r.tokens.Token(c)
	if err != nil {
		return err
	}
	vault := s.Vault().Address()
	if c.IsNative() {
		err = tok.Transfer(payer, vault, amount)
	} else {
		err = tok.TransferFrom(r.address, payer, vault, amount)
	}
	if err != nil {
		return err
	}
	paid, err := s.Settle(c)
	if err != nil {
		return err
	}
	r.logger.Debug("settled",
		zap.String("currency", c.Hex()),
		zap.String("payer", payer.Hex()),
		zap.String("paid", paid.Dec()),
	)
	return nil
}

func toAmount(x *big.Int) (*uint256.Int, error) {
	amount, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ledger.ErrDeltaOverflow
	}
	return amount, nil
}
