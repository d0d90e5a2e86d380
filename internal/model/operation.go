package model

import (
	"encoding/json"
	"fmt"

	"ammcore/internal/types"
)

// OpKind names a replayable operation.
type OpKind string

const (
	OpInitialize OpKind = "initialize"
	OpModify     OpKind = "modify"
	OpSwap       OpKind = "swap"
	OpDonate     OpKind = "donate"
	OpMintToken  OpKind = "mint-token"
	OpApprove    OpKind = "approve"
)

// Operation is one line of a replay file. Amounts are decimal strings;
// addresses are hex.
type Operation struct {
	Seq  uint64         `json:"seq"`
	Kind OpKind         `json:"kind"`
	Key  *types.PoolKey `json:"key,omitempty"`

	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`

	TickLower      int32  `json:"tick_lower,omitempty"`
	TickUpper      int32  `json:"tick_upper,omitempty"`
	LiquidityDelta string `json:"liquidity_delta,omitempty"`

	ZeroForOne        bool   `json:"zero_for_one,omitempty"`
	AmountSpecified   string `json:"amount_specified,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrt_price_limit_x96,omitempty"`

	Amount0 string `json:"amount0,omitempty"`
	Amount1 string `json:"amount1,omitempty"`

	Payer      string `json:"payer,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	UseSurplus bool   `json:"use_surplus,omitempty"`

	Token   string `json:"token,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// Validate checks that the fields the kind needs are present.
func (o Operation) Validate() error {
	switch o.Kind {
	case OpInitialize:
		return requireFields(o.Kind, o.Key != nil, "key", o.SqrtPriceX96 != "", "sqrt_price_x96")
	case OpModify:
		return requireFields(o.Kind, o.Key != nil, "key", o.LiquidityDelta != "", "liquidity_delta", o.Payer != "", "payer")
	case OpSwap:
		return requireFields(o.Kind, o.Key != nil, "key", o.AmountSpecified != "", "amount_specified", o.SqrtPriceLimitX96 != "", "sqrt_price_limit_x96")
	case OpDonate:
		return requireFields(o.Kind, o.Key != nil, "key", o.Amount0 != "", "amount0", o.Amount1 != "", "amount1")
	case OpMintToken:
		return requireFields(o.Kind, o.Owner != "", "owner", o.Amount != "", "amount")
	case OpApprove:
		return requireFields(o.Kind, o.Token != "", "token", o.Owner != "", "owner", o.Amount != "", "amount")
	case "":
		return fmt.Errorf("operation kind is required")
	default:
		return fmt.Errorf("unknown operation kind %q", o.Kind)
	}
}

func requireFields(kind OpKind, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if ok, _ := pairs[i].(bool); !ok {
			return fmt.Errorf("%s: %s is required", kind, pairs[i+1])
		}
	}
	return nil
}

// UnmarshalJSON decodes an Operation and rejects invalid ones.
func (o *Operation) UnmarshalJSON(data []byte) error {
	type Alias Operation
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := Operation(a).Validate(); err != nil {
		return err
	}
	*o = Operation(a)
	return nil
}
