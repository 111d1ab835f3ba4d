package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/defistate/defistate-dex-go/storage/jsonl"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0x00000000000000000000000000000000000000d1"
const alice = "0x00000000000000000000000000000000000000a1"

func testGenesis() *config.Genesis {
	return &config.Genesis{
		Tokens: []config.GenesisToken{
			{Name: "Token A", Symbol: "TKA", Decimals: 18, Supply: "1000000", Owner: owner},
			{Name: "Token B", Symbol: "TKB", Decimals: 6, Supply: "1000000", Owner: owner,
				Address: "0x00000000000000000000000000000000000000b0"},
		},
		Allocations: []config.GenesisAllocation{
			{Token: "tka", Account: alice, Amount: "250.5"},
			{Token: "TKB", Account: alice, Amount: "1000"},
		},
		Pools: []config.GenesisPool{{TokenA: "TKA", TokenB: "TKB"}},
	}
}

func newTestExchange(t *testing.T) (*tokenregistry.Ledger, *dex.Exchange) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := tokenregistry.NewLedger(logger)
	exchange, err := dex.NewExchange(&dex.Config{
		Address:    dryRunExchange,
		FeeBps:     dex.DefaultFeeBps,
		Transferer: ledger,
		Tokens:     ledger,
		Logger:     logger,
		Registry:   prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(exchange.Close)
	return ledger, exchange
}

func TestApplyGenesis(t *testing.T) {
	ledger, exchange := newTestExchange(t)
	ctx := context.Background()

	addresses, err := applyGenesis(ctx, testGenesis(), ledger, exchange)
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	assert.Equal(t, common.HexToAddress("0xb0"), addresses["TKB"])

	balance, err := ledger.BalanceOf(addresses["TKA"], common.HexToAddress(alice))
	require.NoError(t, err)
	assert.Equal(t, "250500000000000000000", balance.String())

	balance, err = ledger.BalanceOf(addresses["TKB"], common.HexToAddress(owner))
	require.NoError(t, err)
	assert.Equal(t, "999000000000", balance.String())

	assert.True(t, exchange.PoolExists(addresses["TKB"], addresses["TKA"]))
	assert.Equal(t, uint64(1), exchange.Sequence())
}

func TestApplyGenesis_AllocationExceedsSupply(t *testing.T) {
	ledger, exchange := newTestExchange(t)
	g := testGenesis()
	g.Allocations[0].Amount = "2000000"

	_, err := applyGenesis(context.Background(), g, ledger, exchange)
	assert.ErrorIs(t, err, tokenregistry.ErrInsufficientBalance)
}

func TestApplyGenesis_DuplicatePool(t *testing.T) {
	ledger, exchange := newTestExchange(t)
	g := testGenesis()
	g.Pools = append(g.Pools, config.GenesisPool{TokenA: "TKB", TokenB: "TKA"})

	_, err := applyGenesis(context.Background(), g, ledger, exchange)
	assert.ErrorIs(t, err, dex.ErrPoolAlreadyExists)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestEventsCommandReadsJSONL(t *testing.T) {
	ledger, exchange := newTestExchange(t)
	ctx := context.Background()
	addresses, err := applyGenesis(ctx, testGenesis(), ledger, exchange)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "events.jsonl")
	pool, err := exchange.GetPoolInfo(addresses["TKA"], addresses["TKB"])
	require.NoError(t, err)
	require.NoError(t, jsonl.NewEventFile(path).WriteEvents(ctx, []dex.Event{
		{ID: uuid.New(), Sequence: 1, Type: dex.EventPoolCreated, Pool: pool.Key, Timestamp: time.Now().UnixNano()},
	}))

	cmd := newEventsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--events-jsonl", path, "--pool", pool.Key.String()})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), string(dex.EventPoolCreated))

	cmd = newEventsCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.ErrorContains(t, cmd.ExecuteContext(ctx), "required")
}

func TestGenesisCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tokens:
  - {name: Token A, symbol: TKA, decimals: 18, supply: "100", owner: "`+owner+`"}
  - {name: Token B, symbol: TKB, decimals: 18, supply: "100", owner: "`+owner+`"}
pools:
  - {tokenA: TKA, tokenB: TKB}
`), 0o644))

	cmd := &cobra.Command{RunE: runGenesisCheck, Args: cobra.MaximumNArgs(1)}
	cmd.Flags().String("log-level", "error", "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "TKA")
	assert.Contains(t, out.String(), "supply=100")
	assert.Contains(t, out.String(), "pool")
}
