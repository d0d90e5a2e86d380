package replay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"ammcore/internal/fees"
	"ammcore/internal/ledger"
	"ammcore/internal/manager"
	"ammcore/internal/metrics"
	"ammcore/internal/model"
	"ammcore/internal/pool"
	"ammcore/internal/router"
	"ammcore/internal/token"
	"ammcore/internal/types"
)

var ErrInvalidOperation = errors.New("replay: invalid operation")

// EngineConfig places the engine's actors. The zero value uses the
// default addresses.
type EngineConfig struct {
	Vault   common.Address
	Owner   common.Address
	Manager common.Address
	Router  common.Address

	ManagerOptions []manager.Option
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

var (
	DefaultVaultAddress   = common.HexToAddress("0x000000000000000000000000000000000000a001")
	DefaultOwnerAddress   = common.HexToAddress("0x000000000000000000000000000000000000a002")
	DefaultManagerAddress = common.HexToAddress("0x000000000000000000000000000000000000a003")
	DefaultRouterAddress  = common.HexToAddress("0x000000000000000000000000000000000000a004")
)

// Engine is a complete in-memory deployment: token registry, vault, one
// registered pool manager and a router.
type Engine struct {
	Tokens  *token.Registry
	Vault   *ledger.Vault
	Manager *manager.Manager
	Router  *router.Router

	volumes map[common.Hash]*Volume
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	pick := func(a, def common.Address) common.Address {
		if a == (common.Address{}) {
			return def
		}
		return a
	}
	vaultAddr := pick(cfg.Vault, DefaultVaultAddress)
	owner := pick(cfg.Owner, DefaultOwnerAddress)
	managerAddr := pick(cfg.Manager, DefaultManagerAddress)
	routerAddr := pick(cfg.Router, DefaultRouterAddress)

	reg := token.NewRegistry()
	vault := ledger.NewVault(vaultAddr, owner, reg,
		ledger.WithLogger(cfg.Logger.Named("vault")),
		ledger.WithMetrics(cfg.Metrics),
	)
	vault.Attach(reg)

	opts := append([]manager.Option{
		manager.WithLogger(cfg.Logger.Named("manager")),
		manager.WithMetrics(cfg.Metrics),
	}, cfg.ManagerOptions...)
	m := manager.New(managerAddr, owner, vault, opts...)
	if err := vault.RegisterPoolManager(owner, managerAddr); err != nil {
		return nil, err
	}

	return &Engine{
		Tokens:  reg,
		Vault:   vault,
		Manager: m,
		Router:  router.New(routerAddr, m, reg, cfg.Logger.Named("router")),
		volumes: make(map[common.Hash]*Volume),
	}, nil
}

// Apply executes one operation. For pool operations it returns the key of
// the pool it touched.
func (e *Engine) Apply(ctx context.Context, op model.Operation) (*types.PoolKey, error) {
	if err := op.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	switch op.Kind {
	case model.OpMintToken:
		return nil, e.mintToken(op)
	case model.OpApprove:
		return nil, e.approve(op)
	}

	key := *op.Key
	if key.PoolManager == (common.Address{}) {
		key.PoolManager = e.Manager.Address()
	}
	var err error
	switch op.Kind {
	case model.OpInitialize:
		var price *uint256.Int
		if price, err = parseUint("sqrt_price_x96", op.SqrtPriceX96); err != nil {
			return nil, err
		}
		_, err = e.Manager.Initialize(ctx, key, price)
	case model.OpModify:
		var delta *big.Int
		if delta, err = parseInt("liquidity_delta", op.LiquidityDelta); err != nil {
			return nil, err
		}
		_, err = e.Router.ModifyLiquidity(ctx, key, manager.ModifyLiquidityParams{
			TickLower:      op.TickLower,
			TickUpper:      op.TickUpper,
			LiquidityDelta: delta,
		}, e.settings(op))
	case model.OpSwap:
		var (
			amount *big.Int
			limit  *uint256.Int
		)
		if amount, err = parseInt("amount_specified", op.AmountSpecified); err != nil {
			return nil, err
		}
		if limit, err = parseUint("sqrt_price_limit_x96", op.SqrtPriceLimitX96); err != nil {
			return nil, err
		}
		var res pool.SwapResult
		res, err = e.Router.Swap(ctx, key, manager.SwapParams{
			ZeroForOne:        op.ZeroForOne,
			AmountSpecified:   amount,
			SqrtPriceLimitX96: limit,
		}, e.settings(op))
		if err == nil {
			e.volume(key).AddSwap(res.Delta, res.SwapFee)
		}
	case model.OpDonate:
		var a0, a1 *uint256.Int
		if a0, err = parseUint("amount0", op.Amount0); err != nil {
			return nil, err
		}
		if a1, err = parseUint("amount1", op.Amount1); err != nil {
			return nil, err
		}
		_, err = e.Router.Donate(ctx, key, a0, a1, e.settings(op))
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (e *Engine) settings(op model.Operation) router.Settings {
	payer := common.HexToAddress(op.Payer)
	recipient := payer
	if op.Recipient != "" {
		recipient = common.HexToAddress(op.Recipient)
	}
	return router.Settings{Payer: payer, Recipient: recipient, UseSurplus: op.UseSurplus}
}

func (e *Engine) handle(tokenHex string, register bool) (*token.Token, error) {
	currency := types.Native
	if tokenHex != "" {
		if !common.IsHexAddress(tokenHex) {
			return nil, fmt.Errorf("%w: token %q", ErrInvalidOperation, tokenHex)
		}
		currency = types.CurrencyFromHex(tokenHex)
	}
	h, err := e.Tokens.Handle(currency)
	if errors.Is(err, token.ErrUnknownToken) && register {
		if err := e.Tokens.Register(currency); err != nil {
			return nil, err
		}
		return e.Tokens.Handle(currency)
	}
	return h, err
}

func (e *Engine) mintToken(op model.Operation) error {
	amount, err := parseUint("amount", op.Amount)
	if err != nil {
		return err
	}
	h, err := e.handle(op.Token, true)
	if err != nil {
		return err
	}
	return h.Mint(common.HexToAddress(op.Owner), amount)
}

func (e *Engine) approve(op model.Operation) error {
	amount := new(uint256.Int).SetAllOne()
	if op.Amount != "max" {
		var err error
		if amount, err = parseUint("amount", op.Amount); err != nil {
			return err
		}
	}
	spender := e.Router.Address()
	if op.Spender != "" {
		spender = common.HexToAddress(op.Spender)
	}
	h, err := e.handle(op.Token, false)
	if err != nil {
		return err
	}
	return h.Approve(common.HexToAddress(op.Owner), spender, amount)
}

// Volume returns the swap activity recorded for a pool, or nil.
func (e *Engine) Volume(key types.PoolKey) *Volume {
	return e.volumes[key.ID()]
}

func (e *Engine) volume(key types.PoolKey) *Volume {
	v, ok := e.volumes[key.ID()]
	if !ok {
		v = newVolume()
		e.volumes[key.ID()] = v
	}
	return v
}

// Snapshot reads the pool's current state as a record.
func (e *Engine) Snapshot(key types.PoolKey, seq uint64, at time.Time) (model.PoolSnapshot, error) {
	st, err := e.Manager.Pool(key)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	spacing, _ := e.Manager.TickSpacing(fees.SwapFee(key.Fee).Static())
	snap := model.PoolSnapshot{
		Seq:                  seq,
		PoolID:               key.ID().Hex(),
		Currency0:            key.Currency0.Hex(),
		Currency1:            key.Currency1.Hex(),
		Fee:                  key.Fee,
		TickSpacing:          spacing,
		SqrtPriceX96:         st.Slot0.SqrtPriceX96.Dec(),
		Tick:                 st.Slot0.Tick,
		Liquidity:            st.Liquidity.Dec(),
		FeeGrowthGlobal0X128: st.FeeGrowthGlobal0X128.Dec(),
		FeeGrowthGlobal1X128: st.FeeGrowthGlobal1X128.Dec(),
		ProtocolFee:          uint16(st.Slot0.ProtocolFee),
		SwapFee:              st.Slot0.SwapFee,
		Volume0:              "0",
		Volume1:              "0",
		Fees0:                "0",
		Fees1:                "0",
	}
	if v := e.volumes[key.ID()]; v != nil {
		snap.SwapCount = v.SwapCount
		snap.Volume0 = v.Volume0.String()
		snap.Volume1 = v.Volume1.String()
		snap.Fees0 = v.Fee0.String()
		snap.Fees1 = v.Fee1.String()
	}
	if !at.IsZero() {
		snap.TakenAt = at.UTC().Format(time.RFC3339Nano)
	}
	return snap, nil
}

// Digest hashes the whole deployment: every pool with its ticks and
// positions, the vault's reserves, surplus and the manager's share, accrued
// protocol fees and every token balance. Two engines that applied the same
// operations have the same digest.
func (e *Engine) Digest() (string, error) {
	h := blake3.New()
	for _, key := range e.Manager.PoolKeys() {
		snap, err := e.Snapshot(key, 0, time.Time{})
		if err != nil {
			return "", err
		}
		line, err := json.Marshal(snap)
		if err != nil {
			return "", err
		}
		_, _ = h.Write(line)

		st, err := e.Manager.Pool(key)
		if err != nil {
			return "", err
		}
		for _, t := range st.Ticks.Ticks() {
			info := st.Ticks[t]
			fmt.Fprintf(h, "tick %d %s %s %s %s;", t, info.LiquidityGross.Dec(), info.LiquidityNet,
				info.FeeGrowthOutside0X128.Dec(), info.FeeGrowthOutside1X128.Dec())
		}
		for _, k := range st.Positions.Keys() {
			info := st.Positions[k]
			fmt.Fprintf(h, "position %s %s %s %s;", k.Hex(), info.Liquidity.Dec(),
				info.FeeGrowthInside0LastX128.Dec(), info.FeeGrowthInside1LastX128.Dec())
		}
	}

	manager := e.Manager.Address()
	for _, c := range e.Tokens.Currencies() {
		fmt.Fprintf(h, "reserves %s %s %s %s;", c.Hex(), e.Vault.ReservesOfVault(c).Dec(),
			e.Vault.ReservesOfPoolManager(manager, c).Dec(), e.Manager.ProtocolFeesAccrued(c).Dec())
		for _, owner := range e.Vault.SurplusHolders(c) {
			fmt.Fprintf(h, "surplus %s %s %s;", c.Hex(), owner.Hex(), e.Vault.BalanceOf(owner, c).Dec())
		}
		tok, err := e.Tokens.Handle(c)
		if err != nil {
			return "", err
		}
		for _, holder := range tok.Holders() {
			fmt.Fprintf(h, "balance %s %s %s;", c.Hex(), holder.Hex(), tok.BalanceOf(holder).Dec())
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func parseUint(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidOperation, field, s, err)
	}
	return v, nil
}

func parseInt(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidOperation, field, s)
	}
	return v, nil
}
