package server

import (
	"context"
	"math/big"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/differ"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Exchange is the part of *dex.Exchange the server exposes.
type Exchange interface {
	Address() common.Address
	FeeBps() uint16
	Sequence() uint64
	PoolExists(tokenA, tokenB common.Address) bool
	GetPoolInfo(tokenA, tokenB common.Address) (constantproduct.Pool, error)
	Pools() []constantproduct.Pool
	GetUserLiquidity(provider, tokenA, tokenB common.Address) *big.Int
	Positions(provider common.Address) []constantproduct.Position
	GetAmountOut(amountInAfterFee, reserveIn, reserveOut *big.Int) (*big.Int, error)
	Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
	QuoteIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)
	CreatePool(ctx context.Context, tokenA, tokenB common.Address) (constantproduct.Pool, error)
	AddLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, amountA, amountB *big.Int) (dex.LiquidityResult, error)
	RemoveLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, shares *big.Int) (dex.LiquidityResult, error)
	Swap(ctx context.Context, trader, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (dex.SwapResult, error)
	State() *engine.State
	SubscribeEvents(ch chan<- dex.Event) event.Subscription
}

// StateDiffer computes the diff between two exchange states.
type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// TokenLedger is the token bookkeeping exposed under the token namespace.
type TokenLedger interface {
	Tokens() []tokenregistry.Token
	BalanceOf(token, account common.Address) (*big.Int, error)
	Allowance(token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
}

// EventSubscriptionDropped is the type of the last notification on an events subscription
// whose subscriber fell too far behind. Its Sequence is the first event that was not
// delivered; the subscriber has to resubscribe and backfill from there.
const EventSubscriptionDropped dex.EventType = "subscriptionDropped"

// StreamEvent is the envelope of every state stream notification.
// Type is "full" for a complete state and "diff" for a StateDiff.
type StreamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

const (
	StreamEventFull = "full"
	StreamEventDiff = "diff"
)

// PoolInfo is the wire form of a pool snapshot.
type PoolInfo struct {
	Key         poolregistry.PoolKey `json:"key"`
	Token0      common.Address       `json:"token0"`
	Token1      common.Address       `json:"token1"`
	Reserve0    *hexutil.Big         `json:"reserve0"`
	Reserve1    *hexutil.Big         `json:"reserve1"`
	TotalShares *hexutil.Big         `json:"totalShares"`
	FeeBps      hexutil.Uint64       `json:"feeBps"`
}

func newPoolInfo(pool constantproduct.Pool) *PoolInfo {
	return &PoolInfo{
		Key:         pool.Key,
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Reserve0:    (*hexutil.Big)(pool.Reserve0),
		Reserve1:    (*hexutil.Big)(pool.Reserve1),
		TotalShares: (*hexutil.Big)(pool.TotalShares),
		FeeBps:      hexutil.Uint64(pool.FeeBps),
	}
}

// Pool converts the wire form back to a pool snapshot.
func (p *PoolInfo) Pool() constantproduct.Pool {
	return constantproduct.Pool{
		Key:         p.Key,
		Token0:      p.Token0,
		Token1:      p.Token1,
		Reserve0:    p.Reserve0.ToInt(),
		Reserve1:    p.Reserve1.ToInt(),
		TotalShares: p.TotalShares.ToInt(),
		FeeBps:      uint16(p.FeeBps),
	}
}

type PositionInfo struct {
	Pool     poolregistry.PoolKey `json:"pool"`
	Provider common.Address       `json:"provider"`
	Shares   *hexutil.Big         `json:"shares"`
}

type AddLiquidityArgs struct {
	Provider common.Address `json:"provider"`
	TokenA   common.Address `json:"tokenA"`
	TokenB   common.Address `json:"tokenB"`
	AmountA  *hexutil.Big   `json:"amountA"`
	AmountB  *hexutil.Big   `json:"amountB"`
}

type RemoveLiquidityArgs struct {
	Provider common.Address `json:"provider"`
	TokenA   common.Address `json:"tokenA"`
	TokenB   common.Address `json:"tokenB"`
	Shares   *hexutil.Big   `json:"shares"`
}

// LiquidityReceipt reports a committed deposit or withdrawal. AmountA and AmountB follow
// the request's token order.
type LiquidityReceipt struct {
	Pool     *PoolInfo      `json:"pool"`
	Shares   *hexutil.Big   `json:"shares"`
	AmountA  *hexutil.Big   `json:"amountA"`
	AmountB  *hexutil.Big   `json:"amountB"`
	Sequence hexutil.Uint64 `json:"sequence"`
}

type SwapArgs struct {
	Trader       common.Address `json:"trader"`
	TokenIn      common.Address `json:"tokenIn"`
	TokenOut     common.Address `json:"tokenOut"`
	AmountIn     *hexutil.Big   `json:"amountIn"`
	MinAmountOut *hexutil.Big   `json:"minAmountOut,omitempty"`
}

type SwapReceipt struct {
	Pool      *PoolInfo      `json:"pool"`
	AmountIn  *hexutil.Big   `json:"amountIn"`
	AmountOut *hexutil.Big   `json:"amountOut"`
	Sequence  hexutil.Uint64 `json:"sequence"`
}

// toInt unwraps an optional hex argument.
func toInt(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToInt()
}
