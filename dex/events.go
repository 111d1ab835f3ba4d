package dex

import (
	"math/big"

	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type EventType string

const (
	EventPoolCreated      EventType = "poolCreated"
	EventLiquidityAdded   EventType = "liquidityAdded"
	EventLiquidityRemoved EventType = "liquidityRemoved"
	EventSwapExecuted     EventType = "swapExecuted"
)

// Event records one committed exchange operation.
//
// Sequence is unique and increases by one per committed operation. Events from different
// pools may be delivered out of sequence order; events from one pool never are.
// Reserve0, Reserve1 and TotalShares are the pool's values after the operation.
type Event struct {
	ID        uuid.UUID            `json:"id"`
	Sequence  uint64               `json:"sequence"`
	Type      EventType            `json:"type"`
	Timestamp int64                `json:"timestamp"` // unix nanoseconds
	Pool      poolregistry.PoolKey `json:"pool"`
	Token0    common.Address       `json:"token0"`
	Token1    common.Address       `json:"token1"`

	// Account is the liquidity provider or trader. It is zero for poolCreated.
	Account common.Address `json:"account"`

	// swapExecuted
	TokenIn   common.Address `json:"tokenIn"`
	TokenOut  common.Address `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn,omitempty"`
	AmountOut *big.Int       `json:"amountOut,omitempty"`

	// liquidityAdded / liquidityRemoved, in pool order
	Amount0 *big.Int `json:"amount0,omitempty"`
	Amount1 *big.Int `json:"amount1,omitempty"`
	Shares  *big.Int `json:"shares,omitempty"`

	Reserve0    *big.Int `json:"reserve0"`
	Reserve1    *big.Int `json:"reserve1"`
	TotalShares *big.Int `json:"totalShares"`
}
