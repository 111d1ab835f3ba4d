package server

import (
	"context"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DexAPI is registered under the "dex" namespace.
type DexAPI struct {
	exchange Exchange
	streamer *streamer
}

func (api *DexAPI) Address() common.Address {
	return api.exchange.Address()
}

func (api *DexAPI) FeeBps() hexutil.Uint64 {
	return hexutil.Uint64(api.exchange.FeeBps())
}

func (api *DexAPI) Sequence() hexutil.Uint64 {
	return hexutil.Uint64(api.exchange.Sequence())
}

func (api *DexAPI) PoolExists(tokenA, tokenB common.Address) bool {
	return api.exchange.PoolExists(tokenA, tokenB)
}

func (api *DexAPI) GetPoolInfo(tokenA, tokenB common.Address) (*PoolInfo, error) {
	pool, err := api.exchange.GetPoolInfo(tokenA, tokenB)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newPoolInfo(pool), nil
}

func (api *DexAPI) Pools() []*PoolInfo {
	pools := api.exchange.Pools()
	infos := make([]*PoolInfo, 0, len(pools))
	for _, pool := range pools {
		infos = append(infos, newPoolInfo(pool))
	}
	return infos
}

func (api *DexAPI) GetUserLiquidity(provider, tokenA, tokenB common.Address) *hexutil.Big {
	return (*hexutil.Big)(api.exchange.GetUserLiquidity(provider, tokenA, tokenB))
}

func (api *DexAPI) Positions(provider common.Address) []PositionInfo {
	positions := api.exchange.Positions(provider)
	infos := make([]PositionInfo, 0, len(positions))
	for _, p := range positions {
		infos = append(infos, PositionInfo{Pool: p.Pool, Provider: p.Provider, Shares: (*hexutil.Big)(p.Shares)})
	}
	return infos
}

func (api *DexAPI) GetAmountOut(amountInAfterFee, reserveIn, reserveOut *hexutil.Big) (*hexutil.Big, error) {
	out, err := api.exchange.GetAmountOut(toInt(amountInAfterFee), toInt(reserveIn), toInt(reserveOut))
	if err != nil {
		return nil, toRPCError(err)
	}
	return (*hexutil.Big)(out), nil
}

func (api *DexAPI) Quote(tokenIn, tokenOut common.Address, amountIn *hexutil.Big) (*hexutil.Big, error) {
	out, err := api.exchange.Quote(tokenIn, tokenOut, toInt(amountIn))
	if err != nil {
		return nil, toRPCError(err)
	}
	return (*hexutil.Big)(out), nil
}

func (api *DexAPI) QuoteIn(tokenIn, tokenOut common.Address, amountOut *hexutil.Big) (*hexutil.Big, error) {
	in, err := api.exchange.QuoteIn(tokenIn, tokenOut, toInt(amountOut))
	if err != nil {
		return nil, toRPCError(err)
	}
	return (*hexutil.Big)(in), nil
}

func (api *DexAPI) State() *engine.State {
	return api.exchange.State()
}

func (api *DexAPI) CreatePool(ctx context.Context, tokenA, tokenB common.Address) (*PoolInfo, error) {
	pool, err := api.exchange.CreatePool(ctx, tokenA, tokenB)
	if err != nil {
		return nil, toRPCError(err)
	}
	return newPoolInfo(pool), nil
}

func (api *DexAPI) AddLiquidity(ctx context.Context, args AddLiquidityArgs) (*LiquidityReceipt, error) {
	result, err := api.exchange.AddLiquidity(ctx, args.Provider, args.TokenA, args.TokenB, toInt(args.AmountA), toInt(args.AmountB))
	if err != nil {
		return nil, toRPCError(err)
	}
	return &LiquidityReceipt{
		Pool:     newPoolInfo(result.Pool),
		Shares:   (*hexutil.Big)(result.Shares),
		AmountA:  (*hexutil.Big)(result.AmountA),
		AmountB:  (*hexutil.Big)(result.AmountB),
		Sequence: hexutil.Uint64(result.Sequence),
	}, nil
}

func (api *DexAPI) RemoveLiquidity(ctx context.Context, args RemoveLiquidityArgs) (*LiquidityReceipt, error) {
	result, err := api.exchange.RemoveLiquidity(ctx, args.Provider, args.TokenA, args.TokenB, toInt(args.Shares))
	if err != nil {
		return nil, toRPCError(err)
	}
	return &LiquidityReceipt{
		Pool:     newPoolInfo(result.Pool),
		Shares:   (*hexutil.Big)(result.Shares),
		AmountA:  (*hexutil.Big)(result.AmountA),
		AmountB:  (*hexutil.Big)(result.AmountB),
		Sequence: hexutil.Uint64(result.Sequence),
	}, nil
}

func (api *DexAPI) Swap(ctx context.Context, args SwapArgs) (*SwapReceipt, error) {
	result, err := api.exchange.Swap(ctx, args.Trader, args.TokenIn, args.TokenOut, toInt(args.AmountIn), toInt(args.MinAmountOut))
	if err != nil {
		return nil, toRPCError(err)
	}
	return &SwapReceipt{
		Pool:      newPoolInfo(result.Pool),
		AmountIn:  (*hexutil.Big)(result.AmountIn),
		AmountOut: (*hexutil.Big)(result.AmountOut),
		Sequence:  hexutil.Uint64(result.Sequence),
	}, nil
}
