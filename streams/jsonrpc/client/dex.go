package client

import (
	"context"
	"errors"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// DexClient issues calls against the dex and token namespaces.
//
// Exchange failures come back wrapped around their dex error kind, so
// errors.Is(err, dex.ErrSlippageExceeded) works across the connection.
type DexClient struct {
	rpc *rpc.Client
}

// Dial connects to an exchange server over http(s) or ws(s).
func Dial(ctx context.Context, url string) (*DexClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewDexClient(c), nil
}

func NewDexClient(c *rpc.Client) *DexClient {
	return &DexClient{rpc: c}
}

func (c *DexClient) Close() {
	c.rpc.Close()
}

// RPC exposes the underlying connection, e.g. for subscriptions.
func (c *DexClient) RPC() *rpc.Client {
	return c.rpc
}

func (c *DexClient) call(ctx context.Context, result any, method string, args ...any) error {
	return fromRPCError(c.rpc.CallContext(ctx, result, method, args...))
}

func (c *DexClient) Address(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, server.DexNamespace+"_address")
	return addr, err
}

func (c *DexClient) Sequence(ctx context.Context) (uint64, error) {
	var seq hexutil.Uint64
	err := c.call(ctx, &seq, server.DexNamespace+"_sequence")
	return uint64(seq), err
}

func (c *DexClient) PoolExists(ctx context.Context, tokenA, tokenB common.Address) (bool, error) {
	var exists bool
	err := c.call(ctx, &exists, server.DexNamespace+"_poolExists", tokenA, tokenB)
	return exists, err
}

func (c *DexClient) GetPoolInfo(ctx context.Context, tokenA, tokenB common.Address) (constantproduct.Pool, error) {
	var info server.PoolInfo
	if err := c.call(ctx, &info, server.DexNamespace+"_getPoolInfo", tokenA, tokenB); err != nil {
		return constantproduct.Pool{}, err
	}
	return info.Pool(), nil
}

func (c *DexClient) Pools(ctx context.Context) ([]constantproduct.Pool, error) {
	var infos []*server.PoolInfo
	if err := c.call(ctx, &infos, server.DexNamespace+"_pools"); err != nil {
		return nil, err
	}
	pools := make([]constantproduct.Pool, 0, len(infos))
	for _, info := range infos {
		pools = append(pools, info.Pool())
	}
	return pools, nil
}

func (c *DexClient) GetUserLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address) (*big.Int, error) {
	var shares hexutil.Big
	if err := c.call(ctx, &shares, server.DexNamespace+"_getUserLiquidity", provider, tokenA, tokenB); err != nil {
		return nil, err
	}
	return shares.ToInt(), nil
}

func (c *DexClient) Positions(ctx context.Context, provider common.Address) ([]server.PositionInfo, error) {
	var positions []server.PositionInfo
	err := c.call(ctx, &positions, server.DexNamespace+"_positions", provider)
	return positions, err
}

func (c *DexClient) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	var out hexutil.Big
	if err := c.call(ctx, &out, server.DexNamespace+"_quote", tokenIn, tokenOut, (*hexutil.Big)(amountIn)); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

func (c *DexClient) QuoteIn(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	var in hexutil.Big
	if err := c.call(ctx, &in, server.DexNamespace+"_quoteIn", tokenIn, tokenOut, (*hexutil.Big)(amountOut)); err != nil {
		return nil, err
	}
	return in.ToInt(), nil
}

func (c *DexClient) GetAmountOut(ctx context.Context, amountInAfterFee, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	var out hexutil.Big
	err := c.call(ctx, &out, server.DexNamespace+"_getAmountOut",
		(*hexutil.Big)(amountInAfterFee), (*hexutil.Big)(reserveIn), (*hexutil.Big)(reserveOut))
	if err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

func (c *DexClient) CreatePool(ctx context.Context, tokenA, tokenB common.Address) (constantproduct.Pool, error) {
	var info server.PoolInfo
	if err := c.call(ctx, &info, server.DexNamespace+"_createPool", tokenA, tokenB); err != nil {
		return constantproduct.Pool{}, err
	}
	return info.Pool(), nil
}

func (c *DexClient) AddLiquidity(ctx context.Context, args server.AddLiquidityArgs) (*server.LiquidityReceipt, error) {
	var receipt server.LiquidityReceipt
	if err := c.call(ctx, &receipt, server.DexNamespace+"_addLiquidity", args); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *DexClient) RemoveLiquidity(ctx context.Context, args server.RemoveLiquidityArgs) (*server.LiquidityReceipt, error) {
	var receipt server.LiquidityReceipt
	if err := c.call(ctx, &receipt, server.DexNamespace+"_removeLiquidity", args); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *DexClient) Swap(ctx context.Context, args server.SwapArgs) (*server.SwapReceipt, error) {
	var receipt server.SwapReceipt
	if err := c.call(ctx, &receipt, server.DexNamespace+"_swap", args); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// State fetches the exchange state with protocol data left as decoded JSON values.
func (c *DexClient) State(ctx context.Context) (*engine.State, error) {
	var state engine.State
	if err := c.call(ctx, &state, server.DexNamespace+"_state"); err != nil {
		return nil, err
	}
	return &state, nil
}

// SubscribeEvents streams committed exchange events into ch. Requires a ws connection.
// An event of type server.EventSubscriptionDropped is the last one sent: the subscriber fell
// behind and must resubscribe from its Sequence.
func (c *DexClient) SubscribeEvents(ctx context.Context, ch chan<- dex.Event) (*rpc.ClientSubscription, error) {
	return c.rpc.Subscribe(ctx, server.DexNamespace, ch, server.EventsSubscriptionMethod)
}

func (c *DexClient) Tokens(ctx context.Context) ([]tokenregistry.Token, error) {
	var tokens []tokenregistry.Token
	err := c.call(ctx, &tokens, server.TokenNamespace+"_tokens")
	return tokens, err
}

func (c *DexClient) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var balance hexutil.Big
	if err := c.call(ctx, &balance, server.TokenNamespace+"_balanceOf", token, account); err != nil {
		return nil, err
	}
	return balance.ToInt(), nil
}

func (c *DexClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var allowance hexutil.Big
	if err := c.call(ctx, &allowance, server.TokenNamespace+"_allowance", token, owner, spender); err != nil {
		return nil, err
	}
	return allowance.ToInt(), nil
}

func (c *DexClient) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	var ok bool
	return c.call(ctx, &ok, server.TokenNamespace+"_approve", token, owner, spender, (*hexutil.Big)(amount))
}

func (c *DexClient) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	var ok bool
	return c.call(ctx, &ok, server.TokenNamespace+"_transfer", token, from, to, (*hexutil.Big)(amount))
}

// fromRPCError restores the dex error kind carried in the error data.
func fromRPCError(err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	name, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	kind := dex.KindByName(name)
	if kind == nil {
		return err
	}
	return errorsmod.Wrap(kind, dataErr.Error())
}
