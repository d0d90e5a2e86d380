package model

// PoolSnapshot is the state of one pool after a replay batch.
type PoolSnapshot struct {
	Seq                  uint64 `json:"seq"`
	PoolID               string `json:"pool_id"`
	Currency0            string `json:"currency0"`
	Currency1            string `json:"currency1"`
	Fee                  uint32 `json:"fee"`
	TickSpacing          int32  `json:"tick_spacing"`
	SqrtPriceX96         string `json:"sqrt_price_x96"`
	Tick                 int32  `json:"tick"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
	ProtocolFee          uint16 `json:"protocol_fee"`
	SwapFee              uint32 `json:"swap_fee"`
	SwapCount            uint64 `json:"swap_count"`
	Volume0              string `json:"volume0"`
	Volume1              string `json:"volume1"`
	Fees0                string `json:"fees0"`
	Fees1                string `json:"fees1"`
	TakenAt              string `json:"taken_at,omitempty"`
}

// OpError records an operation the engine rejected.
type OpError struct {
	Seq   uint64 `json:"seq"`
	Kind  OpKind `json:"kind"`
	Error string `json:"error"`
}

// Checkpoint is the replay position and the digest of engine state at it.
type Checkpoint struct {
	LastSeq   uint64 `json:"last_seq"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}
