package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer        = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	trader          = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	exchangeAccount = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type liveExchange struct {
	exchange *dex.Exchange
	ledger   *tokenregistry.Ledger
	ops      *stateops.StateOps
	url      string
	tokenA   common.Address
	tokenB   common.Address
}

func startExchange(t *testing.T) *liveExchange {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := tokenregistry.NewLedger(logger)
	var tokens []common.Address
	for _, symbol := range []string{"TKA", "TKB"} {
		token, err := ledger.Deploy(deployer, "Token "+symbol, symbol, 18, e18(1_000_000_000))
		require.NoError(t, err)
		require.NoError(t, ledger.Transfer(ctx, token.Address, deployer, trader, e18(1_000_000)))
		tokens = append(tokens, token.Address)
	}

	registry := prometheus.NewRegistry()
	exchange, err := dex.NewExchange(&dex.Config{
		Address:    exchangeAccount,
		FeeBps:     dex.DefaultFeeBps,
		Transferer: ledger,
		Tokens:     ledger,
		Logger:     logger,
		Registry:   registry,
	})
	require.NoError(t, err)

	ops, err := stateops.NewStateOps(logger, registry)
	require.NoError(t, err)

	srv, err := server.NewServer(&server.Config{
		Exchange: exchange,
		Differ:   ops,
		Ledger:   ledger,
		Logger:   logger,
	})
	require.NoError(t, err)
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		httpServer.Close()
		exchange.Close()
	})

	return &liveExchange{
		exchange: exchange,
		ledger:   ledger,
		ops:      ops,
		url:      httpServer.URL,
		tokenA:   tokens[0],
		tokenB:   tokens[1],
	}
}

func (l *liveExchange) wsURL() string {
	return "ws" + strings.TrimPrefix(l.url, "http")
}

func TestDexClient_TradingRoundTrip(t *testing.T) {
	live := startExchange(t)
	ctx := context.Background()

	c, err := Dial(ctx, live.url)
	require.NoError(t, err)
	defer c.Close()

	for _, token := range []common.Address{live.tokenA, live.tokenB} {
		require.NoError(t, c.Approve(ctx, token, trader, exchangeAccount, math.MaxBig256))
	}

	allowance, err := c.Allowance(ctx, live.tokenA, trader, exchangeAccount)
	require.NoError(t, err)
	assert.Equal(t, math.MaxBig256, allowance)

	pool, err := c.CreatePool(ctx, live.tokenA, live.tokenB)
	require.NoError(t, err)
	assert.Equal(t, dex.DefaultFeeBps, pool.FeeBps)

	receipt, err := c.AddLiquidity(ctx, server.AddLiquidityArgs{
		Provider: trader,
		TokenA:   live.tokenA,
		TokenB:   live.tokenB,
		AmountA:  (*hexutil.Big)(e18(1000)),
		AmountB:  (*hexutil.Big)(e18(2000)),
	})
	require.NoError(t, err)
	assert.Equal(t, e18(1000), receipt.AmountA.ToInt())

	quote, err := c.Quote(ctx, live.tokenA, live.tokenB, e18(10))
	require.NoError(t, err)

	swap, err := c.Swap(ctx, server.SwapArgs{
		Trader:       trader,
		TokenIn:      live.tokenA,
		TokenOut:     live.tokenB,
		AmountIn:     (*hexutil.Big)(e18(10)),
		MinAmountOut: (*hexutil.Big)(quote),
	})
	require.NoError(t, err)
	assert.Equal(t, quote, swap.AmountOut.ToInt())

	seq, err := c.Sequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	shares, err := c.GetUserLiquidity(ctx, trader, live.tokenB, live.tokenA)
	require.NoError(t, err)
	assert.Equal(t, receipt.Shares.ToInt(), shares)

	positions, err := c.Positions(ctx, trader)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, pool.Key, positions[0].Pool)

	tokens, err := c.Tokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	require.NoError(t, c.Transfer(ctx, live.tokenB, trader, recipient, e18(5)))
	balance, err := c.BalanceOf(ctx, live.tokenB, recipient)
	require.NoError(t, err)
	assert.Equal(t, e18(5), balance)
}

func TestDexClient_ErrorKindsSurviveTheWire(t *testing.T) {
	live := startExchange(t)
	ctx := context.Background()

	c, err := Dial(ctx, live.url)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetPoolInfo(ctx, live.tokenA, live.tokenB)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dex.ErrPoolNotFound))
	assert.Equal(t, dex.ErrPoolNotFound, dex.KindOf(err))

	_, err = c.CreatePool(ctx, live.tokenA, live.tokenA)
	assert.True(t, errors.Is(err, dex.ErrIdenticalTokens))

	_, err = c.CreatePool(ctx, live.tokenA, live.tokenB)
	require.NoError(t, err)
	_, err = c.CreatePool(ctx, live.tokenB, live.tokenA)
	assert.True(t, errors.Is(err, dex.ErrPoolAlreadyExists))

	// no allowance granted
	_, err = c.AddLiquidity(ctx, server.AddLiquidityArgs{
		Provider: trader,
		TokenA:   live.tokenA,
		TokenB:   live.tokenB,
		AmountA:  (*hexutil.Big)(e18(1)),
		AmountB:  (*hexutil.Big)(e18(1)),
	})
	assert.True(t, errors.Is(err, dex.ErrTransferFailed))
}

func TestClient_ReconstructsExchangeState(t *testing.T) {
	live := startExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := live.exchange.CreatePool(ctx, live.tokenA, live.tokenB)
	require.NoError(t, err)

	stream, err := NewClient(ctx, Config{
		URL:              live.wsURL(),
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		BufferSize:       64,
		StatePatcher:     live.ops.Patch,
		StateDecoder:     live.ops.DecodeStateJSON,
		StateDiffDecoder: live.ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	next := func() *engine.State {
		select {
		case state := <-stream.State():
			return state
		case <-ctx.Done():
			t.Fatal("timed out waiting for state")
			return nil
		}
	}

	first := next()
	assert.Equal(t, uint64(1), first.Sequence)

	for _, token := range []common.Address{live.tokenA, live.tokenB} {
		require.NoError(t, live.ledger.Approve(ctx, token, trader, exchangeAccount, math.MaxBig256))
	}

	_, err = live.exchange.AddLiquidity(ctx, trader, live.tokenA, live.tokenB, e18(1000), e18(2000))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = live.exchange.Swap(ctx, trader, live.tokenA, live.tokenB, e18(3), nil)
		require.NoError(t, err)
	}

	// diffs may be coalesced; read until the stream catches up
	want := live.exchange.Sequence()
	var last *engine.State
	for last == nil || last.Sequence < want {
		last = next()
	}
	require.Equal(t, want, last.Sequence)

	pools, ok := last.Protocols[constantproduct.ProtocolID].Data.([]constantproduct.Pool)
	require.True(t, ok)
	require.Len(t, pools, 1)

	expected, err := live.exchange.GetPoolInfo(live.tokenA, live.tokenB)
	require.NoError(t, err)
	assert.Equal(t, expected.Key, pools[0].Key)
	assert.Equal(t, 0, expected.Reserve0.Cmp(pools[0].Reserve0))
	assert.Equal(t, 0, expected.Reserve1.Cmp(pools[0].Reserve1))
	assert.Equal(t, 0, expected.TotalShares.Cmp(pools[0].TotalShares))

	tokens, ok := last.Protocols[tokenregistry.ProtocolID].Data.([]tokenregistry.Token)
	require.True(t, ok)
	assert.Len(t, tokens, 2)
}
